// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/meridianscore/meridian/services/signal/collect"
)

// remoteValidate checks scoring backend responses before they are
// trusted. Initialized once; validator instances cache struct metadata.
var remoteValidate = validator.New()

// remoteResponse is the scoring backend's wire format.
type remoteResponse struct {
	OverallScore    int            `json:"overall_score" validate:"gte=0,lte=100"`
	ComponentScores map[string]int `json:"component_scores" validate:"omitempty,dive,gte=0,lte=100"`
	Confidence      float64        `json:"confidence" validate:"gte=0,lte=1"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
}

// RemoteScorerConfig configures the scoring backend client.
type RemoteScorerConfig struct {
	// URL is the scoring endpoint. Required.
	URL string

	// Timeout bounds one scoring request. Default: 10s.
	Timeout time.Duration

	// RequestsPerSecond limits outbound calls. Default: 1.
	RequestsPerSecond float64

	// Logger for client events.
	Logger *slog.Logger
}

// RemoteScorer submits profiles to the remote scoring backend.
//
// Any transport, status, decode, or validation failure is reported as
// ErrBackendUnreachable so the aggregator falls back to local scoring;
// there is no transport-level retry.
//
// Thread Safety: Safe for concurrent use.
type RemoteScorer struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRemoteScorer creates the scoring backend client.
//
// Inputs:
//
//	cfg - Client configuration. URL is required.
//
// Outputs:
//
//	*RemoteScorer - The client.
//	error - Non-nil if the URL is missing.
func NewRemoteScorer(cfg RemoteScorerConfig) (*RemoteScorer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("scoring backend URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RemoteScorer{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  cfg.Logger.With(slog.String("component", "remote_scorer")),
	}, nil
}

// Score submits the profile and returns the backend's assessment.
func (s *RemoteScorer) Score(ctx context.Context, profile *collect.Profile) (*Assessment, error) {
	if profile == nil {
		return nil, ErrNilProfile
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnreachable, resp.StatusCode)
	}

	var wire remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrBackendUnreachable, err)
	}
	if err := remoteValidate.Struct(wire); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrBackendUnreachable, err)
	}

	s.logger.Debug("remote score received",
		slog.Int("overall_score", wire.OverallScore),
		slog.String("cycle_id", profile.CycleID),
	)

	return &Assessment{
		OverallScore:    wire.OverallScore,
		ComponentScores: wire.ComponentScores,
		Confidence:      wire.Confidence,
		Insights:        wire.Insights,
		Recommendations: wire.Recommendations,
		GeneratedAt:     time.Now().UnixMilli(),
		Basis:           BasisRemote,
	}, nil
}
