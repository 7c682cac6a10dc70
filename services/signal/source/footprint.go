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
	"strings"
	"time"
)

// paymentSignatures maps storage key prefixes to inferred payment
// methods. There is no authoritative API for payment-method usage, so
// presence of these keys is treated as heuristic evidence only.
var paymentSignatures = map[string]string{
	"gpay_":    "google_pay",
	"paypal_":  "paypal",
	"wallet_":  "device_wallet",
	"stripe_":  "card_on_file",
	"klarna_":  "bnpl",
	"binance_": "crypto",
}

// DigitalFootprintCollector infers account breadth and payment-method
// usage from locally visible storage signatures.
//
// Thread Safety: Safe for concurrent use.
type DigitalFootprintCollector struct {
	provider   FootprintProvider
	hasConsent ConsentQuery
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDigitalFootprintCollector creates the digital-footprint collector.
//
// Inputs:
//
//	provider - Footprint signature source. Nil yields not_implemented results.
//	hasConsent - Consent query. Must not be nil.
//	timeout - Per-call budget. Zero uses 5s.
//	logger - Logger. If nil, uses slog.Default().
func NewDigitalFootprintCollector(provider FootprintProvider, hasConsent ConsentQuery, timeout time.Duration, logger *slog.Logger) *DigitalFootprintCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DigitalFootprintCollector{
		provider:   provider,
		hasConsent: hasConsent,
		timeout:    timeout,
		logger:     logger.With(slog.String("source", IDDigitalFootprint)),
	}
}

// ID returns the stable source identifier.
func (c *DigitalFootprintCollector) ID() string { return IDDigitalFootprint }

// Timeout returns the per-call budget.
func (c *DigitalFootprintCollector) Timeout() time.Duration { return c.timeout }

// Collect builds the footprint payload from storage signatures and
// account hints.
func (c *DigitalFootprintCollector) Collect(ctx context.Context) (res Result) {
	defer recoverToResult(IDDigitalFootprint, &res)

	if !c.hasConsent() {
		return deniedResult(IDDigitalFootprint)
	}
	if c.provider == nil {
		return failedResult(IDDigitalFootprint, StatusNotImplemented, ErrSourceUnavailable)
	}

	keys, err := c.provider.StorageKeys(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failedResult(IDDigitalFootprint, StatusTimedOut, ErrSourceTimeout)
		}
		return failedResult(IDDigitalFootprint, StatusFailed, fmt.Errorf("storage keys: %w", err))
	}

	methods := inferPaymentMethods(keys)

	payload := map[string]any{
		"storage_key_count":       len(keys),
		"payment_methods":         methods,
		"payment_method_count":    len(methods),
		PayloadKeyHeuristicFields: []string{"payment_methods", "payment_method_count"},
	}
	status := StatusSuccess

	// Account hints are best-effort; a hint failure degrades to partial
	// rather than discarding the payment inference.
	hints, err := c.provider.AccountHints(ctx)
	if err != nil {
		status = StatusPartial
		c.logger.Warn("account hints unavailable", slog.String("error", err.Error()))
	} else {
		total := 0
		for _, n := range hints {
			total += n
		}
		payload["account_categories"] = len(hints)
		payload["account_count"] = total
	}

	return Result{
		SourceID:    IDDigitalFootprint,
		Status:      status,
		Payload:     payload,
		CollectedAt: time.Now().UnixMilli(),
	}
}

// inferPaymentMethods scans storage keys for known payment signatures.
// Output order is deterministic (signature iteration sorted by method).
func inferPaymentMethods(keys []string) []string {
	seen := map[string]bool{}
	for _, key := range keys {
		lower := strings.ToLower(key)
		for prefix, method := range paymentSignatures {
			if strings.HasPrefix(lower, prefix) {
				seen[method] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for _, method := range []string{"bnpl", "card_on_file", "crypto", "device_wallet", "google_pay", "paypal"} {
		if seen[method] {
			out = append(out, method)
		}
	}
	return out
}
