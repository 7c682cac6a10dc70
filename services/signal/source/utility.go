// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// UtilityCollector summarizes recurring-payment traces (utility bills,
// telecom top-ups, subscriptions) into a behavior-pattern payload.
//
// Thread Safety: Safe for concurrent use.
type UtilityCollector struct {
	provider   UtilityProvider
	hasConsent ConsentQuery
	timeout    time.Duration
	logger     *slog.Logger
}

// NewUtilityCollector creates the utility-payment collector.
//
// Inputs:
//
//	provider - Payment trace source. Nil yields not_implemented results.
//	hasConsent - Consent query. Must not be nil.
//	timeout - Per-call budget. Zero uses 5s.
//	logger - Logger. If nil, uses slog.Default().
func NewUtilityCollector(provider UtilityProvider, hasConsent ConsentQuery, timeout time.Duration, logger *slog.Logger) *UtilityCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UtilityCollector{
		provider:   provider,
		hasConsent: hasConsent,
		timeout:    timeout,
		logger:     logger.With(slog.String("source", IDUtility)),
	}
}

// ID returns the stable source identifier.
func (c *UtilityCollector) ID() string { return IDUtility }

// Timeout returns the per-call budget.
func (c *UtilityCollector) Timeout() time.Duration { return c.timeout }

// Collect aggregates payment traces into the utility payload.
func (c *UtilityCollector) Collect(ctx context.Context) (res Result) {
	defer recoverToResult(IDUtility, &res)

	if !c.hasConsent() {
		return deniedResult(IDUtility)
	}
	if c.provider == nil {
		return failedResult(IDUtility, StatusNotImplemented, ErrSourceUnavailable)
	}

	records, err := c.provider.Records(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failedResult(IDUtility, StatusTimedOut, ErrSourceTimeout)
		}
		return failedResult(IDUtility, StatusFailed, fmt.Errorf("utility records: %w", err))
	}
	if len(records) == 0 {
		return failedResult(IDUtility, StatusFailed, ErrSourceUnavailable)
	}

	var (
		months    int
		ratioSum  float64
		estimated int
	)
	for _, rec := range records {
		if rec.MonthsObserved > months {
			months = rec.MonthsObserved
		}
		ratioSum += rec.OnTimeRatio
		if rec.Estimated {
			estimated++
		}
	}

	payload := map[string]any{
		"accounts":        len(records),
		"months_observed": months,
		"on_time_ratio":   ratioSum / float64(len(records)),
	}

	status := StatusSuccess
	if estimated > 0 {
		// Estimated records carry inferred ratios; tag and report how many.
		payload["estimated_accounts"] = estimated
		payload[PayloadKeyHeuristicFields] = []string{"on_time_ratio", "estimated_accounts"}
	}

	c.logger.Debug("utility traces collected",
		slog.Int("accounts", len(records)),
		slog.Int("estimated", estimated),
	)

	return Result{
		SourceID:    IDUtility,
		Status:      status,
		Payload:     payload,
		CollectedAt: time.Now().UnixMilli(),
	}
}
