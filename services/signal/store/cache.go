// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/meridianscore/meridian/services/signal/collect"
	"github.com/meridianscore/meridian/services/signal/risk"
)

// KV slots. One profile, one assessment per active session.
const (
	profileKey    = "cache/profile"
	assessmentKey = "cache/assessment"
)

// Cache holds the latest composite profile and risk assessment.
//
// Description:
//
//	The cache has exactly one writer per slot (the orchestrator for
//	the profile, the session for the assessment) and many readers.
//	Writes replace the whole record under the lock, so a reader never
//	observes a partially-updated value. Persistence is write-through
//	and soft-fail: a KV error is logged, the in-memory value stands,
//	and the next cycle's write retries.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	kv     KV
	logger *slog.Logger

	mu         sync.RWMutex
	profile    *collect.Profile
	assessment *risk.Assessment
}

// NewCache creates a cache backed by the given KV store, restoring any
// persisted profile and assessment from a previous session.
//
// Inputs:
//
//	kv - Persistence. Must not be nil.
//	logger - Logger. If nil, uses slog.Default().
func NewCache(kv KV, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		kv:     kv,
		logger: logger.With(slog.String("component", "result_cache")),
	}

	ctx := context.Background()
	var profile collect.Profile
	if err := kv.Get(ctx, profileKey, &profile); err == nil {
		c.profile = &profile
		c.logger.Info("cached profile restored",
			slog.String("cycle_id", profile.CycleID),
		)
	} else if !errors.Is(err, ErrKeyNotFound) {
		c.logger.Warn("restore cached profile failed", slog.String("error", err.Error()))
	}

	var assessment risk.Assessment
	if err := kv.Get(ctx, assessmentKey, &assessment); err == nil {
		c.assessment = &assessment
	}

	return c
}

// Profile returns the latest completed profile, or nil when none exists.
func (c *Cache) Profile() *collect.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// SetProfile atomically replaces the cached profile and writes it
// through to the KV store. A persistence failure is returned but the
// in-memory replacement stands.
func (c *Cache) SetProfile(ctx context.Context, p *collect.Profile) error {
	c.mu.Lock()
	c.profile = p
	c.mu.Unlock()

	if err := c.kv.Set(ctx, profileKey, p); err != nil {
		c.logger.Error("persist profile failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Assessment returns the latest assessment, or nil when none exists.
func (c *Cache) Assessment() *risk.Assessment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assessment
}

// SetAssessment atomically replaces the cached assessment and writes it
// through to the KV store.
func (c *Cache) SetAssessment(ctx context.Context, a *risk.Assessment) error {
	c.mu.Lock()
	c.assessment = a
	c.mu.Unlock()

	if err := c.kv.Set(ctx, assessmentKey, a); err != nil {
		c.logger.Error("persist assessment failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Clear drops the cached profile and assessment, in memory and in the
// KV store. Invoked by consent revocation and nowhere else implicitly.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.profile = nil
	c.assessment = nil
	c.mu.Unlock()

	for _, key := range []string{profileKey, assessmentKey} {
		if err := c.kv.Remove(ctx, key); err != nil {
			c.logger.Error("clear cache slot failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Info("result cache cleared")
}
