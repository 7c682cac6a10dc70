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
	"math"
	"sync"
	"time"
)

// Coordinate coarsening parameters. Raw high-precision coordinates are
// never retained past the coarsening step.
const (
	// coarseDecimals is the number of decimal places kept, ~1.1km grid.
	coarseDecimals = 2

	// MinAccuracyM is the minimum accuracy radius ever reported, in meters.
	MinAccuracyM = 1000.0
)

// LocationCollector acquires a deliberately coarse location fix.
//
// It drives the permission sub-state-machine
// (unknown -> requested -> granted|denied|blocked), then reads one
// coordinate and immediately coarsens it: latitude/longitude rounded to
// two decimal places and accuracy floored at MinAccuracyM.
//
// Thread Safety: Safe for concurrent use.
type LocationCollector struct {
	provider   LocationProvider
	hasConsent ConsentQuery
	timeout    time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	state PermissionState
}

// NewLocationCollector creates the location collector.
//
// Inputs:
//
//	provider - Location/permission source. Nil yields not_implemented results.
//	hasConsent - Consent query. Must not be nil.
//	timeout - Per-call budget. Zero uses 15s (location fixes are slow).
//	logger - Logger. If nil, uses slog.Default().
func NewLocationCollector(provider LocationProvider, hasConsent ConsentQuery, timeout time.Duration, logger *slog.Logger) *LocationCollector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationCollector{
		provider:   provider,
		hasConsent: hasConsent,
		timeout:    timeout,
		logger:     logger.With(slog.String("source", IDLocation)),
		state:      PermissionUnknown,
	}
}

// ID returns the stable source identifier.
func (c *LocationCollector) ID() string { return IDLocation }

// Timeout returns the per-call budget.
func (c *LocationCollector) Timeout() time.Duration { return c.timeout }

// PermissionState returns the last observed permission state.
func (c *LocationCollector) PermissionState() PermissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *LocationCollector) setState(s PermissionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Collect acquires and coarsens one location fix.
func (c *LocationCollector) Collect(ctx context.Context) (res Result) {
	defer recoverToResult(IDLocation, &res)

	if !c.hasConsent() {
		return deniedResult(IDLocation)
	}
	if c.provider == nil {
		return failedResult(IDLocation, StatusNotImplemented, ErrSourceUnavailable)
	}

	state, err := c.ensurePermission(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failedResult(IDLocation, StatusTimedOut, ErrSourceTimeout)
		}
		return failedResult(IDLocation, StatusFailed, err)
	}

	switch state {
	case PermissionDenied:
		return failedResult(IDLocation, StatusPermissionDenied, ErrPermissionDenied)
	case PermissionBlocked:
		return failedResult(IDLocation, StatusPermissionDenied, ErrPermissionBlocked)
	case PermissionGranted:
		// fall through to the fix
	default:
		return failedResult(IDLocation, StatusFailed, fmt.Errorf("unexpected permission state %q", state))
	}

	raw, err := c.provider.Current(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failedResult(IDLocation, StatusTimedOut, ErrSourceTimeout)
		}
		return failedResult(IDLocation, StatusFailed, fmt.Errorf("current coordinate: %w", err))
	}

	lat, lon, acc := Coarsen(raw)

	c.logger.Debug("location collected",
		slog.Float64("accuracy_m", acc),
	)

	return Result{
		SourceID: IDLocation,
		Status:   StatusSuccess,
		Payload: map[string]any{
			"latitude":   lat,
			"longitude":  lon,
			"accuracy_m": acc,
			"permission": string(PermissionGranted),
		},
		CollectedAt: time.Now().UnixMilli(),
	}
}

// ensurePermission walks the permission state machine until a terminal
// state is reached, prompting at most once per call.
func (c *LocationCollector) ensurePermission(ctx context.Context) (PermissionState, error) {
	state, err := c.provider.Permission(ctx)
	if err != nil {
		return PermissionUnknown, fmt.Errorf("query permission: %w", err)
	}
	c.setState(state)

	if state != PermissionUnknown {
		return state, nil
	}

	c.setState(PermissionRequested)
	state, err = c.provider.Request(ctx)
	if err != nil {
		return PermissionRequested, fmt.Errorf("request permission: %w", err)
	}
	c.setState(state)
	return state, nil
}

// Coarsen reduces a raw coordinate to storage precision: two decimal
// places and an accuracy radius of at least MinAccuracyM.
func Coarsen(raw Coordinate) (lat, lon, accuracyM float64) {
	lat = roundTo(raw.Latitude, coarseDecimals)
	lon = roundTo(raw.Longitude, coarseDecimals)
	accuracyM = math.Max(raw.AccuracyM, MinAccuracyM)
	return lat, lon, accuracyM
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
