// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package consent

import "errors"

// Sentinel errors for the consent gate.
var (
	// ErrNilPrompter indicates the gate was built without a prompt surface.
	ErrNilPrompter = errors.New("prompter must not be nil")

	// ErrNilStore indicates the gate was built without persistence.
	ErrNilStore = errors.New("store must not be nil")

	// ErrInvalidPurpose indicates an unknown consent purpose.
	ErrInvalidPurpose = errors.New("invalid consent purpose")
)
