// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package consent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrompter struct {
	decision bool
	err      error
	calls    int
}

func (f *fakePrompter) Prompt(ctx context.Context, purpose Purpose, explanation string) (bool, error) {
	f.calls++
	return f.decision, f.err
}

// mapStore is an in-memory Store for gate tests.
type mapStore struct {
	data   map[string][]byte
	setErr error
}

func newMapStore() *mapStore { return &mapStore{data: map[string][]byte{}} }

func (m *mapStore) Get(ctx context.Context, key string, dest any) error {
	raw, ok := m.data[key]
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapStore) Set(ctx context.Context, key string, value any) error {
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *mapStore) Remove(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestNewGateValidation(t *testing.T) {
	_, err := NewGate(nil, newMapStore(), nil)
	assert.ErrorIs(t, err, ErrNilPrompter)

	_, err = NewGate(&fakePrompter{}, nil, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestRequestConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("grant persists and authorizes", func(t *testing.T) {
		store := newMapStore()
		prompter := &fakePrompter{decision: true}
		gate, err := NewGate(prompter, store, nil)
		require.NoError(t, err)

		granted, err := gate.RequestConsent(ctx, Request{
			Purpose:     PurposeCreditScoring,
			Explanation: "score your application",
		})
		require.NoError(t, err)
		assert.True(t, granted)
		assert.True(t, gate.HasConsent())

		rec := gate.Record()
		assert.Equal(t, PurposeCreditScoring, rec.Scope)
		assert.NotZero(t, rec.GrantedAt)
		assert.Zero(t, rec.RevokedAt)
		assert.Contains(t, store.data, recordKey)
	})

	t.Run("repeat request short-circuits without re-prompting", func(t *testing.T) {
		prompter := &fakePrompter{decision: true}
		gate, err := NewGate(prompter, newMapStore(), nil)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			granted, err := gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
			require.NoError(t, err)
			assert.True(t, granted)
		}
		assert.Equal(t, 1, prompter.calls)
	})

	t.Run("force re-prompts", func(t *testing.T) {
		prompter := &fakePrompter{decision: true}
		gate, err := NewGate(prompter, newMapStore(), nil)
		require.NoError(t, err)

		_, err = gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		require.NoError(t, err)
		_, err = gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring, Force: true})
		require.NoError(t, err)

		assert.Equal(t, 2, prompter.calls)
	})

	t.Run("declined force re-prompt leaves the grant standing", func(t *testing.T) {
		prompter := &fakePrompter{decision: true}
		gate, err := NewGate(prompter, newMapStore(), nil)
		require.NoError(t, err)

		_, err = gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		require.NoError(t, err)

		// The user refuses the re-confirmation; withdrawal is Revoke only.
		prompter.decision = false
		granted, err := gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring, Force: true})
		require.NoError(t, err)

		assert.False(t, granted)
		assert.True(t, gate.HasConsent())
		assert.Equal(t, 2, prompter.calls)
	})

	t.Run("decline does not authorize and may be asked again", func(t *testing.T) {
		store := newMapStore()
		prompter := &fakePrompter{decision: false}
		gate, err := NewGate(prompter, store, nil)
		require.NoError(t, err)

		granted, err := gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		require.NoError(t, err)
		assert.False(t, granted)
		assert.False(t, gate.HasConsent())
		assert.NotContains(t, store.data, recordKey)

		// Second prompt actually reaches the user again.
		_, err = gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		require.NoError(t, err)
		assert.Equal(t, 2, prompter.calls)
	})

	t.Run("invalid purpose rejected", func(t *testing.T) {
		gate, err := NewGate(&fakePrompter{decision: true}, newMapStore(), nil)
		require.NoError(t, err)

		_, err = gate.RequestConsent(ctx, Request{Purpose: "marketing"})
		assert.ErrorIs(t, err, ErrInvalidPurpose)
	})

	t.Run("prompt failure preserves current state", func(t *testing.T) {
		prompter := &fakePrompter{err: errors.New("dialog dismissed by os")}
		gate, err := NewGate(prompter, newMapStore(), nil)
		require.NoError(t, err)

		granted, err := gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		assert.Error(t, err)
		assert.False(t, granted)
	})

	t.Run("persistence failure still authorizes the session", func(t *testing.T) {
		store := newMapStore()
		store.setErr = errors.New("disk full")
		gate, err := NewGate(&fakePrompter{decision: true}, store, nil)
		require.NoError(t, err)

		granted, err := gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		require.NoError(t, err)
		assert.True(t, granted)
		assert.True(t, gate.HasConsent())
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation runs hooks once and is idempotent", func(t *testing.T) {
		gate, err := NewGate(&fakePrompter{decision: true}, newMapStore(), nil)
		require.NoError(t, err)

		hookRuns := 0
		gate.OnRevoke(func(ctx context.Context) { hookRuns++ })

		_, err = gate.RequestConsent(ctx, Request{Purpose: PurposeCreditScoring})
		require.NoError(t, err)

		require.NoError(t, gate.Revoke(ctx))
		require.NoError(t, gate.Revoke(ctx))

		assert.False(t, gate.HasConsent())
		assert.Equal(t, 1, hookRuns)
		assert.NotZero(t, gate.Record().RevokedAt)
	})

	t.Run("revoking without a grant is a no-op", func(t *testing.T) {
		gate, err := NewGate(&fakePrompter{}, newMapStore(), nil)
		require.NoError(t, err)

		hookRuns := 0
		gate.OnRevoke(func(ctx context.Context) { hookRuns++ })

		require.NoError(t, gate.Revoke(ctx))
		assert.Zero(t, hookRuns)
	})
}

func TestGateRestoresPersistedRecord(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()

	gate, err := NewGate(&fakePrompter{decision: true}, store, nil)
	require.NoError(t, err)
	_, err = gate.RequestConsent(ctx, Request{Purpose: PurposeFraudPrevention})
	require.NoError(t, err)

	// A new gate over the same store sees the grant without prompting.
	denying := &fakePrompter{decision: false}
	restored, err := NewGate(denying, store, nil)
	require.NoError(t, err)

	assert.True(t, restored.HasConsent())
	assert.Equal(t, PurposeFraudPrevention, restored.Record().Scope)
	assert.Zero(t, denying.calls)
}
