// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session assembles the signal core into one explicit,
// constructible context with an init/dispose lifecycle.
//
// A Session replaces any notion of process-wide collector state: the
// consent gate, orchestrator, cache, aggregator, and refresher live on
// the Session and die with Close. Consumers hold the Session by
// reference and trigger collection and scoring through it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meridianscore/meridian/pkg/logging"
	"github.com/meridianscore/meridian/services/signal/collect"
	"github.com/meridianscore/meridian/services/signal/consent"
	"github.com/meridianscore/meridian/services/signal/risk"
	"github.com/meridianscore/meridian/services/signal/source"
	"github.com/meridianscore/meridian/services/signal/store"
)

// Deps are the external collaborators a session needs. Providers left
// nil register their collector as a not_implemented stub.
type Deps struct {
	// Prompter presents consent requests. Required.
	Prompter consent.Prompter

	// Device is the device capability provider.
	Device source.DeviceInfoProvider

	// Location is the location/permission provider.
	Location source.LocationProvider

	// Footprint is the digital-footprint signature provider.
	Footprint source.FootprintProvider

	// Utility is the recurring-payment trace provider.
	Utility source.UtilityProvider

	// Scorer overrides the scoring backend client. When nil and
	// Config.Remote.URL is set, an HTTP client is constructed.
	Scorer risk.Scorer

	// Logger for all components. If nil, the session constructs its own
	// logger from Config.Logging and closes it on Close.
	Logger *slog.Logger
}

// Session is the assembled signal-collection and risk-scoring core.
//
// Thread Safety: Safe for concurrent use.
type Session struct {
	cfg    Config
	logger *slog.Logger

	// logSink is the session-owned logger, nil when one was injected.
	logSink *logging.Logger

	kv        store.KV
	cache     *store.Cache
	gate      *consent.Gate
	orch      *collect.Orchestrator
	agg       *risk.Aggregator
	refresher *collect.Refresher

	mu     sync.RWMutex
	closed bool
}

// New creates and wires a session.
//
// Description:
//
//	Opens the persistent store, restores any prior consent record and
//	cached profile, and wires the revocation hooks: revoking consent
//	clears the cache and stops the background refresher. If consent
//	was already granted in a previous session, the refresher is armed
//	immediately.
//
// Inputs:
//
//	cfg - Session configuration. Defaults applied, then validated.
//	deps - External collaborators. Prompter is required.
//
// Outputs:
//
//	*Session - The wired session. Caller must Close() when done.
//	error - Non-nil on invalid config or store open failure.
func New(cfg Config, deps Deps) (*Session, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	var logSink *logging.Logger
	if logger == nil {
		logSink = logging.New(cfg.Logging)
		logger = logSink.Slog()
	}

	var badgerCfg store.BadgerConfig
	if cfg.InMemoryStore {
		badgerCfg = store.InMemoryBadgerConfig()
	} else {
		badgerCfg = store.DefaultBadgerConfig(cfg.StorePath)
	}
	kv, err := store.OpenBadger(badgerCfg)
	if err != nil {
		if logSink != nil {
			logSink.Close()
		}
		return nil, fmt.Errorf("open store: %w", err)
	}

	fail := func(err error) (*Session, error) {
		kv.Close()
		if logSink != nil {
			logSink.Close()
		}
		return nil, err
	}

	cache := store.NewCache(kv, logger)

	gate, err := consent.NewGate(deps.Prompter, kv, logger)
	if err != nil {
		return fail(err)
	}

	collectors := []source.Collector{
		source.NewDigitalFootprintCollector(deps.Footprint, gate.HasConsent, cfg.Timeouts.DigitalFootprint.Std(), logger),
		source.NewDeviceProfileCollector(deps.Device, gate.HasConsent, cfg.Timeouts.DeviceProfile.Std(), logger),
		source.NewLocationCollector(deps.Location, gate.HasConsent, cfg.Timeouts.Location.Std(), logger),
		source.NewUtilityCollector(deps.Utility, gate.HasConsent, cfg.Timeouts.Utility.Std(), logger),
	}

	orch, err := collect.NewOrchestrator(collectors, cache, gate.HasConsent, logger)
	if err != nil {
		return fail(err)
	}

	scorer := deps.Scorer
	if scorer == nil && cfg.Remote.URL != "" {
		rs, err := risk.NewRemoteScorer(risk.RemoteScorerConfig{
			URL:               cfg.Remote.URL,
			Timeout:           cfg.Remote.Timeout.Std(),
			RequestsPerSecond: cfg.Remote.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			return fail(err)
		}
		scorer = rs
	}

	agg := risk.NewAggregator(cfg.Weights, orch.SourceIDs(), scorer, logger)

	refresher := collect.NewRefresher(orch, gate.HasConsent, cfg.RefreshInterval.Std(), logger)

	if cfg.PreserveRemoteAssessment {
		orch.SetWritePolicy(func() bool {
			a := cache.Assessment()
			return a == nil || a.Basis != risk.BasisRemote
		})
	}

	gate.OnRevoke(func(ctx context.Context) {
		refresher.Stop()
		cache.Clear(ctx)
	})

	s := &Session{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "session")),
		logSink:   logSink,
		kv:        kv,
		cache:     cache,
		gate:      gate,
		orch:      orch,
		agg:       agg,
		refresher: refresher,
	}

	// A grant restored from a previous session resumes refreshing.
	if gate.HasConsent() {
		if err := refresher.Start(); err != nil {
			s.logger.Warn("resume background refresh failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

// RequestConsent prompts for consent; a fresh grant arms the
// background refresher.
func (s *Session) RequestConsent(ctx context.Context, req consent.Request) (bool, error) {
	if err := s.active(); err != nil {
		return false, err
	}

	granted, err := s.gate.RequestConsent(ctx, req)
	if err != nil || !granted {
		return granted, err
	}

	if err := s.refresher.Start(); err != nil && err != collect.ErrRefresherRunning {
		s.logger.Warn("start background refresh failed", slog.String("error", err.Error()))
	}
	return true, nil
}

// Revoke withdraws consent, clears the cache, and stops refreshing.
// Idempotent.
func (s *Session) Revoke(ctx context.Context) error {
	if err := s.active(); err != nil {
		return err
	}
	return s.gate.Revoke(ctx)
}

// HasConsent reports whether collection is currently authorized.
func (s *Session) HasConsent() bool {
	return s.gate.HasConsent()
}

// ConsentRecord returns a copy of the current consent record.
func (s *Session) ConsentRecord() consent.Record {
	return s.gate.Record()
}

// Collect runs one explicit collection cycle.
func (s *Session) Collect(ctx context.Context) (*collect.Profile, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	return s.orch.CollectAll(ctx)
}

// ComputeRisk scores the latest cached profile and caches the result.
//
// Outputs:
//
//	*risk.Assessment - The computed assessment.
//	error - risk.ErrNilProfile when no completed cycle exists yet.
func (s *Session) ComputeRisk(ctx context.Context) (*risk.Assessment, error) {
	if err := s.active(); err != nil {
		return nil, err
	}

	profile := s.cache.Profile()
	assessment, err := s.agg.ComputeRisk(ctx, profile)
	if err != nil {
		return nil, err
	}

	// Soft-fail persistence; the assessment is still returned.
	_ = s.cache.SetAssessment(ctx, assessment)
	return assessment, nil
}

// Profile returns the latest completed profile, or nil.
func (s *Session) Profile() *collect.Profile {
	return s.cache.Profile()
}

// Assessment returns the latest computed assessment, or nil.
func (s *Session) Assessment() *risk.Assessment {
	return s.cache.Assessment()
}

// RefresherState exposes the background refresher's lifecycle state.
func (s *Session) RefresherState() collect.RefresherState {
	return s.refresher.State()
}

// Close disposes the session: stops the refresher and closes the
// store. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.refresher.Stop()
	closeErr := s.kv.Close()
	if closeErr == nil {
		s.logger.Info("session closed")
	}
	if s.logSink != nil {
		s.logSink.Close()
	}
	if closeErr != nil {
		return fmt.Errorf("close store: %w", closeErr)
	}
	return nil
}

func (s *Session) active() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
