// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianscore/meridian/services/signal/source"
)

// fakeCollector is a scriptable collector for orchestrator tests. It
// deliberately ignores ctx while sleeping so the orchestrator's own
// timeout enforcement is what gets exercised.
type fakeCollector struct {
	id      string
	delay   time.Duration
	timeout time.Duration
	status  source.Status
	onStart func()
	calls   atomic.Int32
}

func (f *fakeCollector) ID() string { return f.id }

func (f *fakeCollector) Timeout() time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return time.Second
}

func (f *fakeCollector) Collect(ctx context.Context) source.Result {
	f.calls.Add(1)
	if f.onStart != nil {
		f.onStart()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	status := f.status
	if status == "" {
		status = source.StatusSuccess
	}
	res := source.Result{
		SourceID:    f.id,
		Status:      status,
		CollectedAt: time.Now().UnixMilli(),
	}
	if status.Usable() {
		res.Payload = map[string]any{"observed": true}
	}
	return res
}

// recordingCache captures profile writes.
type recordingCache struct {
	mu     sync.Mutex
	writes []*Profile
}

func (c *recordingCache) SetProfile(ctx context.Context, p *Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, p)
	return nil
}

func (c *recordingCache) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func fourCollectors() []source.Collector {
	return []source.Collector{
		&fakeCollector{id: source.IDDigitalFootprint},
		&fakeCollector{id: source.IDDeviceProfile},
		&fakeCollector{id: source.IDLocation},
		&fakeCollector{id: source.IDUtility},
	}
}

func alwaysConsent() bool { return true }

func TestNewOrchestratorRequiresCollectors(t *testing.T) {
	_, err := NewOrchestrator(nil, &recordingCache{}, alwaysConsent, nil)
	assert.ErrorIs(t, err, ErrNoCollectors)
}

func TestCollectAll(t *testing.T) {
	t.Run("all sources settle into one profile", func(t *testing.T) {
		cache := &recordingCache{}
		orch, err := NewOrchestrator(fourCollectors(), cache, alwaysConsent, nil)
		require.NoError(t, err)

		profile, err := orch.CollectAll(context.Background())
		require.NoError(t, err)
		require.NotNil(t, profile)

		assert.Len(t, profile.Sources, 4)
		assert.Equal(t, 4, profile.SuccessCount())
		assert.Len(t, profile.CycleID, 12)
		assert.NotZero(t, profile.AssembledAt)
		assert.Equal(t, 1, cache.writeCount())
	})

	t.Run("slow source times out without short-circuiting the cycle", func(t *testing.T) {
		collectors := []source.Collector{
			&fakeCollector{id: source.IDDigitalFootprint},
			&fakeCollector{id: source.IDDeviceProfile},
			&fakeCollector{id: source.IDLocation, delay: 500 * time.Millisecond, timeout: 40 * time.Millisecond},
			&fakeCollector{id: source.IDUtility},
		}
		orch, err := NewOrchestrator(collectors, &recordingCache{}, alwaysConsent, nil)
		require.NoError(t, err)

		profile, err := orch.CollectAll(context.Background())
		require.NoError(t, err)

		require.Len(t, profile.Sources, 4)
		assert.Equal(t, source.StatusTimedOut, profile.Sources[source.IDLocation].Status)
		assert.Equal(t, 3, profile.SuccessCount())
	})

	t.Run("no consent fails the cycle before fan-out", func(t *testing.T) {
		collectors := fourCollectors()
		orch, err := NewOrchestrator(collectors, &recordingCache{}, func() bool { return false }, nil)
		require.NoError(t, err)

		_, err = orch.CollectAll(context.Background())
		assert.ErrorIs(t, err, ErrNoConsent)
		for _, c := range collectors {
			assert.Zero(t, c.(*fakeCollector).calls.Load())
		}
	})

	t.Run("nil context rejected", func(t *testing.T) {
		orch, err := NewOrchestrator(fourCollectors(), &recordingCache{}, alwaysConsent, nil)
		require.NoError(t, err)

		_, err = orch.CollectAll(nil) //nolint:staticcheck
		assert.ErrorIs(t, err, ErrNilContext)
	})

	t.Run("revocation mid-cycle drops the cache write", func(t *testing.T) {
		var consented atomic.Bool
		consented.Store(true)

		collectors := fourCollectors()
		// One collector revokes consent while the cycle is in flight.
		collectors[1].(*fakeCollector).onStart = func() { consented.Store(false) }

		cache := &recordingCache{}
		orch, err := NewOrchestrator(collectors, cache, consented.Load, nil)
		require.NoError(t, err)

		profile, err := orch.CollectAll(context.Background())
		require.NoError(t, err)

		// The cycle still settles and returns, but nothing is cached.
		assert.Len(t, profile.Sources, 4)
		assert.Zero(t, cache.writeCount())
	})
}

func TestCollectAllJoinsInFlightCycle(t *testing.T) {
	collectors := []source.Collector{
		&fakeCollector{id: source.IDDeviceProfile, delay: 80 * time.Millisecond},
		&fakeCollector{id: source.IDUtility, delay: 80 * time.Millisecond},
	}
	cache := &recordingCache{}
	orch, err := NewOrchestrator(collectors, cache, alwaysConsent, nil)
	require.NoError(t, err)

	const callers = 4
	profiles := make([]*Profile, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			p, err := orch.CollectAll(context.Background())
			assert.NoError(t, err)
			profiles[idx] = p
		}(i)
	}
	wg.Wait()

	// One cycle served everyone.
	for _, c := range collectors {
		assert.Equal(t, int32(1), c.(*fakeCollector).calls.Load())
	}
	for i := 1; i < callers; i++ {
		assert.Equal(t, profiles[0].CycleID, profiles[i].CycleID)
	}
	assert.Equal(t, 1, cache.writeCount())
}

func TestBackgroundWritePolicy(t *testing.T) {
	cache := &recordingCache{}
	orch, err := NewOrchestrator(fourCollectors(), cache, alwaysConsent, nil)
	require.NoError(t, err)
	orch.SetWritePolicy(func() bool { return false })

	// Background cycles consult the policy.
	profile, err := orch.CollectBackground(context.Background())
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Zero(t, cache.writeCount())

	// Explicit cycles always write.
	_, err = orch.CollectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.writeCount())
}

func TestSourceIDsPreserveRegistrationOrder(t *testing.T) {
	orch, err := NewOrchestrator(fourCollectors(), &recordingCache{}, alwaysConsent, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		source.IDDigitalFootprint,
		source.IDDeviceProfile,
		source.IDLocation,
		source.IDUtility,
	}, orch.SourceIDs())
}
