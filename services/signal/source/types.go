// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package source defines the signal collectors that acquire one category
// of device-derived risk signal each.
//
// A collector converts raw provider data into a normalized Result. All
// internal failures (provider absent, permission denied, serialization
// error, panic) are caught and encoded into the Result status; Collect
// never propagates an error to its caller.
//
// Collectors are consent-gated: every Collect call checks the injected
// consent query first and short-circuits to a permission_denied Result
// without touching any provider when consent is not held.
package source

import (
	"context"
	"time"
)

// Well-known source identifiers. These are also the keys of the risk
// weight table, so renaming one is a breaking change.
const (
	IDDigitalFootprint = "digital_footprint"
	IDDeviceProfile    = "device_profile"
	IDLocation         = "location"
	IDUtility          = "utility"
)

// Status describes the terminal outcome of a single collection attempt.
type Status string

const (
	// StatusSuccess means the payload is complete and authoritative.
	StatusSuccess Status = "success"

	// StatusPartial means some payload fields could not be populated.
	StatusPartial Status = "partial"

	// StatusFailed means no usable payload was produced.
	StatusFailed Status = "failed"

	// StatusPermissionDenied means consent or a provider permission was
	// missing. No provider was touched when consent itself was missing.
	StatusPermissionDenied Status = "permission_denied"

	// StatusTimedOut means the collector exceeded its per-call budget.
	StatusTimedOut Status = "timed_out"

	// StatusNotImplemented marks a registered stub that produced no real
	// data. Kept distinct from success so callers never mistake canned
	// values for measurements.
	StatusNotImplemented Status = "not_implemented"
)

// Usable reports whether a status carries a payload worth scoring.
func (s Status) Usable() bool {
	return s == StatusSuccess || s == StatusPartial
}

// PayloadKeyHeuristicFields is the payload key listing field names whose
// values were inferred heuristically rather than read from an
// authoritative API. Downstream consumers dampen confidence accordingly.
const PayloadKeyHeuristicFields = "heuristic_fields"

// Result is the immutable outcome of one collector invocation.
//
// A Result is never partially written: the collector builds it fully
// before returning, and nothing mutates it afterwards.
type Result struct {
	// SourceID identifies the producing collector.
	SourceID string `json:"source_id"`

	// Status is the terminal outcome of the attempt.
	Status Status `json:"status"`

	// Payload is the normalized record. Nil unless Status.Usable().
	Payload map[string]any `json:"payload,omitempty"`

	// CollectedAt is when the attempt finished (Unix milliseconds UTC).
	CollectedAt int64 `json:"collected_at"`

	// Err is optional failure detail for non-success statuses.
	Err string `json:"error,omitempty"`
}

// HeuristicFields returns the payload field names tagged as heuristic.
func (r Result) HeuristicFields() []string {
	raw, ok := r.Payload[PayloadKeyHeuristicFields]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		// JSON round-trips []string to []any.
		out := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Collector is a single-purpose acquisition unit for one signal category.
//
// Implementations must not panic or return errors past Collect; all
// failure modes are encoded into the Result.
type Collector interface {
	// ID returns the stable source identifier.
	ID() string

	// Timeout is the per-call budget the orchestrator enforces.
	Timeout() time.Duration

	// Collect acquires the signal. It honors ctx cancellation at
	// provider I/O boundaries and always returns a fully-formed Result.
	Collect(ctx context.Context) Result
}

// ConsentQuery reports whether collection is currently authorized.
// Wired to the consent gate's HasConsent by the session.
type ConsentQuery func() bool

// deniedResult is the shared short-circuit for a missing consent grant.
func deniedResult(id string) Result {
	return Result{
		SourceID:    id,
		Status:      StatusPermissionDenied,
		CollectedAt: time.Now().UnixMilli(),
		Err:         ErrNoConsent.Error(),
	}
}

// failedResult builds a failed Result carrying error detail.
func failedResult(id string, status Status, err error) Result {
	r := Result{
		SourceID:    id,
		Status:      status,
		CollectedAt: time.Now().UnixMilli(),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}
