// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import "context"

// The provider interfaces below are the external collaborators of the
// core (OS/browser capability surfaces). Collectors treat them as
// opaque, side-effect-free data sources and never reimplement them.

// DeviceInfoProvider exposes a flat key-value record of hardware and
// software attributes (model, OS version, memory, security flags).
type DeviceInfoProvider interface {
	// Attributes returns the current device attribute snapshot.
	Attributes(ctx context.Context) (map[string]string, error)
}

// PermissionState is the location permission sub-state-machine:
// unknown -> requested -> granted|denied|blocked.
type PermissionState string

const (
	PermissionUnknown   PermissionState = "unknown"
	PermissionRequested PermissionState = "requested"
	PermissionGranted   PermissionState = "granted"
	PermissionDenied    PermissionState = "denied"
	PermissionBlocked   PermissionState = "blocked"
)

// Coordinate is a raw provider fix. Raw values never survive past the
// location collector's coarsening step.
type Coordinate struct {
	Latitude  float64
	Longitude float64
	// AccuracyM is the reported accuracy radius in meters.
	AccuracyM float64
}

// LocationProvider exposes a permission query/request pair and a
// current-coordinate query.
type LocationProvider interface {
	// Permission returns the current permission state without prompting.
	Permission(ctx context.Context) (PermissionState, error)

	// Request prompts for the location permission and returns the
	// resulting state (granted, denied, or blocked).
	Request(ctx context.Context) (PermissionState, error)

	// Current returns the current coordinate. Only valid while the
	// permission state is granted.
	Current(ctx context.Context) (Coordinate, error)
}

// FootprintProvider exposes locally observable digital-footprint
// signatures: persisted storage keys left behind by apps and services.
type FootprintProvider interface {
	// StorageKeys returns the visible local storage key names.
	StorageKeys(ctx context.Context) ([]string, error)

	// AccountHints returns detected account identifiers grouped by
	// category (for example "email", "social", "commerce").
	AccountHints(ctx context.Context) (map[string]int, error)
}

// UtilityRecord summarizes one recurring-payment trace found on the
// device (mobile top-ups, utility bills, subscriptions).
type UtilityRecord struct {
	// Kind classifies the payment trace ("electricity", "telecom", ...).
	Kind string

	// MonthsObserved is how many distinct months carry the trace.
	MonthsObserved int

	// OnTimeRatio is the fraction of traces paid on schedule, 0-1.
	OnTimeRatio float64

	// Estimated marks records inferred from indirect evidence rather
	// than an authoritative statement.
	Estimated bool
}

// UtilityProvider exposes recurring-payment traces.
type UtilityProvider interface {
	// Records returns the detected payment traces.
	Records(ctx context.Context) ([]UtilityRecord, error)
}
