// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import "errors"

// Sentinel errors for signal collection. These never escape a Collect
// call; they appear only as Result.Err detail.
var (
	// ErrNoConsent indicates collection was attempted without a consent grant.
	ErrNoConsent = errors.New("consent not granted")

	// ErrPermissionDenied indicates the user declined a provider permission.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPermissionBlocked indicates the permission is permanently blocked
	// and requires an out-of-band settings change.
	ErrPermissionBlocked = errors.New("permission blocked")

	// ErrSourceUnavailable indicates the capability is absent on this device.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceTimeout indicates the collector exceeded its budget.
	ErrSourceTimeout = errors.New("source timed out")

	// ErrSerializationFailure indicates provider data could not be normalized.
	ErrSerializationFailure = errors.New("serialization failure")
)
