// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import "errors"

// Sentinel errors for risk aggregation.
var (
	// ErrNilProfile indicates ComputeRisk was called without a profile.
	ErrNilProfile = errors.New("profile must not be nil")

	// ErrInsufficientData indicates no source produced a usable payload,
	// so no score can be computed without fabricating one.
	ErrInsufficientData = errors.New("insufficient data for risk assessment")

	// ErrBackendUnreachable indicates the remote scoring backend could
	// not be reached or returned an unusable response.
	ErrBackendUnreachable = errors.New("scoring backend unreachable")
)
