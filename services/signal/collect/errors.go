// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collect

import "errors"

// Sentinel errors for collection orchestration.
var (
	// ErrNoConsent indicates a cycle was requested without a consent grant.
	ErrNoConsent = errors.New("consent not granted")

	// ErrNoCollectors indicates the orchestrator has nothing registered.
	ErrNoCollectors = errors.New("no collectors registered")

	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrRefresherRunning indicates Start was called on a started refresher.
	ErrRefresherRunning = errors.New("refresher already started")
)
