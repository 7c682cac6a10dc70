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
	"strconv"
	"time"
)

// DeviceProfileCollector snapshots hardware/software attributes and
// derives security posture fields from them.
//
// Attributes come straight from the provider; posture fields
// (screen lock, debug mode, integrity) are heuristic inferences over
// the attribute map and are tagged as such in the payload.
//
// Thread Safety: Safe for concurrent use.
type DeviceProfileCollector struct {
	provider   DeviceInfoProvider
	hasConsent ConsentQuery
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDeviceProfileCollector creates the device-profile collector.
//
// Inputs:
//
//	provider - Device attribute source. Nil yields not_implemented results.
//	hasConsent - Consent query. Must not be nil.
//	timeout - Per-call budget. Zero uses 5s.
//	logger - Logger. If nil, uses slog.Default().
func NewDeviceProfileCollector(provider DeviceInfoProvider, hasConsent ConsentQuery, timeout time.Duration, logger *slog.Logger) *DeviceProfileCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceProfileCollector{
		provider:   provider,
		hasConsent: hasConsent,
		timeout:    timeout,
		logger:     logger.With(slog.String("source", IDDeviceProfile)),
	}
}

// ID returns the stable source identifier.
func (c *DeviceProfileCollector) ID() string { return IDDeviceProfile }

// Timeout returns the per-call budget.
func (c *DeviceProfileCollector) Timeout() time.Duration { return c.timeout }

// Collect snapshots device attributes into a normalized payload.
func (c *DeviceProfileCollector) Collect(ctx context.Context) (res Result) {
	defer recoverToResult(IDDeviceProfile, &res)

	if !c.hasConsent() {
		return deniedResult(IDDeviceProfile)
	}
	if c.provider == nil {
		return failedResult(IDDeviceProfile, StatusNotImplemented, ErrSourceUnavailable)
	}

	attrs, err := c.provider.Attributes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failedResult(IDDeviceProfile, StatusTimedOut, ErrSourceTimeout)
		}
		return failedResult(IDDeviceProfile, StatusFailed, fmt.Errorf("device attributes: %w", err))
	}
	if len(attrs) == 0 {
		return failedResult(IDDeviceProfile, StatusFailed, ErrSourceUnavailable)
	}

	payload := map[string]any{
		"model":      attrs["model"],
		"os":         attrs["os"],
		"os_version": attrs["os_version"],
	}
	status := StatusSuccess

	if mem, ok := attrs["memory_mb"]; ok {
		if mb, err := strconv.Atoi(mem); err == nil {
			payload["memory_mb"] = mb
		}
	}

	// Posture fields are inferred from flag attributes; an absent flag
	// leaves the field out and downgrades the result to partial.
	heuristic := []string{}
	for _, flag := range []string{"screen_lock", "biometrics", "developer_mode", "rooted"} {
		raw, ok := attrs[flag]
		if !ok {
			status = StatusPartial
			continue
		}
		payload[flag] = raw == "true"
		heuristic = append(heuristic, flag)
	}
	if len(heuristic) > 0 {
		payload[PayloadKeyHeuristicFields] = heuristic
	}

	c.logger.Debug("device profile collected",
		slog.Int("attributes", len(attrs)),
		slog.String("status", string(status)),
	)

	return Result{
		SourceID:    IDDeviceProfile,
		Status:      status,
		Payload:     payload,
		CollectedAt: time.Now().UnixMilli(),
	}
}

// recoverToResult converts a collector panic into a failed Result so it
// never crosses the collector boundary.
func recoverToResult(id string, res *Result) {
	if r := recover(); r != nil {
		*res = failedResult(id, StatusFailed, fmt.Errorf("collector panic: %v", r))
	}
}
