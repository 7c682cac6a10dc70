// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

// Sentinel errors for the persistence layer.
var (
	// ErrKeyNotFound indicates the requested key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrSerialization indicates a value could not be JSON-encoded.
	ErrSerialization = errors.New("serialization failure")
)
