// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collect fans out to the registered signal collectors and fans
// their results into one composite profile per cycle.
package collect

import (
	"context"

	"github.com/meridianscore/meridian/services/signal/source"
)

// Profile is the merged result of one collection cycle across all
// sources. It is replaced wholesale each cycle and never field-patched,
// so readers never observe a torn mix of old and new sources.
type Profile struct {
	// Sources maps source ID to the Result produced in this cycle.
	// Results from superseded cycles are never merged in.
	Sources map[string]source.Result `json:"sources"`

	// AssembledAt is when the cycle finished (Unix milliseconds UTC).
	AssembledAt int64 `json:"assembled_at"`

	// CycleID identifies the producing cycle for log correlation.
	CycleID string `json:"cycle_id"`
}

// SuccessCount returns how many sources completed with status success.
func (p *Profile) SuccessCount() int {
	n := 0
	for _, res := range p.Sources {
		if res.Status == source.StatusSuccess {
			n++
		}
	}
	return n
}

// Cache is the profile sink the orchestrator writes to. Satisfied by
// store.Cache. SetProfile must be an atomic whole-record replacement.
type Cache interface {
	SetProfile(ctx context.Context, p *Profile) error
}
