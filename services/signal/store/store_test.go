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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianscore/meridian/services/signal/collect"
	"github.com/meridianscore/meridian/services/signal/risk"
	"github.com/meridianscore/meridian/services/signal/source"
)

func openTestKV(t *testing.T) *BadgerKV {
	t.Helper()
	kv, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

// testProfile uses JSON-stable payload types so a persisted round trip
// compares equal to the original.
func testProfile() *collect.Profile {
	return &collect.Profile{
		CycleID:     "abc123def456",
		AssembledAt: time.Now().UnixMilli(),
		Sources: map[string]source.Result{
			source.IDDeviceProfile: {
				SourceID: source.IDDeviceProfile,
				Status:   source.StatusSuccess,
				Payload: map[string]any{
					"model":       "pixel-9",
					"screen_lock": true,
					"memory_mb":   float64(8192),
					source.PayloadKeyHeuristicFields: []any{"screen_lock"},
				},
				CollectedAt: time.Now().UnixMilli(),
			},
			source.IDLocation: {
				SourceID:    source.IDLocation,
				Status:      source.StatusTimedOut,
				CollectedAt: time.Now().UnixMilli(),
				Err:         "source timed out",
			},
		},
	}
}

func TestBadgerKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := openTestKV(t)

	original := testProfile()
	require.NoError(t, kv.Set(ctx, "cache/profile", original))

	var restored collect.Profile
	require.NoError(t, kv.Get(ctx, "cache/profile", &restored))
	assert.Equal(t, *original, restored)
}

func TestBadgerKVMissingKey(t *testing.T) {
	kv := openTestKV(t)

	var dest collect.Profile
	err := kv.Get(context.Background(), "no/such/key", &dest)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBadgerKVRemove(t *testing.T) {
	ctx := context.Background()
	kv := openTestKV(t)

	require.NoError(t, kv.Set(ctx, "k", map[string]any{"v": float64(1)}))
	require.NoError(t, kv.Remove(ctx, "k"))

	var dest map[string]any
	assert.ErrorIs(t, kv.Get(ctx, "k", &dest), ErrKeyNotFound)

	// Removing an absent key is a no-op.
	assert.NoError(t, kv.Remove(ctx, "k"))
}

func TestBadgerKVRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

// failingKV errors on every write, for soft-fail tests.
type failingKV struct{}

func (failingKV) Get(ctx context.Context, key string, dest any) error {
	return ErrKeyNotFound
}
func (failingKV) Set(ctx context.Context, key string, value any) error {
	return errors.New("disk full")
}
func (failingKV) Remove(ctx context.Context, key string) error {
	return errors.New("disk full")
}
func (failingKV) Close() error { return nil }

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and read back", func(t *testing.T) {
		cache := NewCache(openTestKV(t), nil)
		require.Nil(t, cache.Profile())

		profile := testProfile()
		require.NoError(t, cache.SetProfile(ctx, profile))
		assert.Same(t, profile, cache.Profile())

		assessment := &risk.Assessment{OverallScore: 42, Basis: risk.BasisLocalFallback}
		require.NoError(t, cache.SetAssessment(ctx, assessment))
		assert.Same(t, assessment, cache.Assessment())
	})

	t.Run("restores persisted slots", func(t *testing.T) {
		kv := openTestKV(t)
		first := NewCache(kv, nil)

		profile := testProfile()
		require.NoError(t, first.SetProfile(ctx, profile))
		require.NoError(t, first.SetAssessment(ctx, &risk.Assessment{OverallScore: 42}))

		second := NewCache(kv, nil)
		require.NotNil(t, second.Profile())
		assert.Equal(t, profile.CycleID, second.Profile().CycleID)
		assert.Equal(t, *profile, *second.Profile())
		require.NotNil(t, second.Assessment())
		assert.Equal(t, 42, second.Assessment().OverallScore)
	})

	t.Run("clear drops memory and persistence", func(t *testing.T) {
		kv := openTestKV(t)
		cache := NewCache(kv, nil)
		require.NoError(t, cache.SetProfile(ctx, testProfile()))
		require.NoError(t, cache.SetAssessment(ctx, &risk.Assessment{OverallScore: 10}))

		cache.Clear(ctx)

		assert.Nil(t, cache.Profile())
		assert.Nil(t, cache.Assessment())
		assert.Nil(t, NewCache(kv, nil).Profile())
	})

	t.Run("persistence failure keeps in-memory value", func(t *testing.T) {
		cache := NewCache(failingKV{}, nil)

		profile := testProfile()
		err := cache.SetProfile(ctx, profile)
		assert.Error(t, err)
		assert.Same(t, profile, cache.Profile())
	})
}
