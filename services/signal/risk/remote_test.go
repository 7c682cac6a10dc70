// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianscore/meridian/services/signal/collect"
)

func newScorer(t *testing.T, url string) *RemoteScorer {
	t.Helper()
	s, err := NewRemoteScorer(RemoteScorerConfig{
		URL:               url,
		RequestsPerSecond: 1000, // don't throttle tests
	})
	require.NoError(t, err)
	return s
}

func TestNewRemoteScorerRequiresURL(t *testing.T) {
	_, err := NewRemoteScorer(RemoteScorerConfig{})
	assert.Error(t, err)
}

func TestRemoteScorerScore(t *testing.T) {
	ctx := context.Background()

	t.Run("valid response", func(t *testing.T) {
		var gotProfile collect.Profile
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotProfile))

			json.NewEncoder(w).Encode(remoteResponse{
				OverallScore:    88,
				ComponentScores: map[string]int{"device_profile": 90},
				Confidence:      0.9,
				Insights:        []string{"backend insight"},
			})
		}))
		defer server.Close()

		assessment, err := newScorer(t, server.URL).Score(ctx, fullProfile())
		require.NoError(t, err)

		assert.Equal(t, 88, assessment.OverallScore)
		assert.Equal(t, BasisRemote, assessment.Basis)
		assert.InDelta(t, 0.9, assessment.Confidence, 1e-9)
		assert.Equal(t, "cycletest001", gotProfile.CycleID)
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "scoring overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newScorer(t, server.URL).Score(ctx, fullProfile())
		assert.ErrorIs(t, err, ErrBackendUnreachable)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := newScorer(t, server.URL).Score(ctx, fullProfile())
		assert.ErrorIs(t, err, ErrBackendUnreachable)
	})

	t.Run("out-of-range score rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(remoteResponse{OverallScore: 150, Confidence: 0.5})
		}))
		defer server.Close()

		_, err := newScorer(t, server.URL).Score(ctx, fullProfile())
		assert.ErrorIs(t, err, ErrBackendUnreachable)
	})

	t.Run("connection failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		_, err := newScorer(t, server.URL).Score(ctx, fullProfile())
		assert.ErrorIs(t, err, ErrBackendUnreachable)
	})

	t.Run("nil profile rejected", func(t *testing.T) {
		_, err := newScorer(t, "http://localhost:1").Score(ctx, nil)
		assert.ErrorIs(t, err, ErrNilProfile)
	})
}
