// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collect

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RefresherState is the refresher's lifecycle state.
type RefresherState string

const (
	// RefresherStopped means no timer is armed.
	RefresherStopped RefresherState = "stopped"

	// RefresherScheduled means the timer is armed and no cycle runs.
	RefresherScheduled RefresherState = "scheduled"

	// RefresherRunning means a refresh cycle is currently in flight.
	RefresherRunning RefresherState = "running"
)

// Refresher periodically re-invokes the orchestrator while consent
// remains valid, to capture behavioral drift between explicit cycles.
//
// Description:
//
//	State machine {stopped, scheduled, running}. Start arms a ticker
//	and moves stopped->scheduled. Each tick runs a background cycle
//	only when the state is still scheduled and consent holds; a tick
//	firing while a cycle runs is skipped, so the refresher never runs
//	concurrently with itself. Stop disarms the timer unconditionally,
//	cancels any in-flight cycle, and is called automatically on
//	consent revocation.
//
// Thread Safety: Safe for concurrent use.
type Refresher struct {
	orch       *Orchestrator
	hasConsent func() bool
	interval   time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	state    RefresherState
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce *sync.Once
	cycleWg  sync.WaitGroup
}

// NewRefresher creates a background refresher.
//
// Inputs:
//
//	orch - The orchestrator to re-invoke. Must not be nil.
//	hasConsent - Consent query. Must not be nil.
//	interval - Tick interval. Zero uses one hour.
//	logger - Logger. If nil, uses slog.Default().
func NewRefresher(orch *Orchestrator, hasConsent func() bool, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		orch:       orch,
		hasConsent: hasConsent,
		interval:   interval,
		logger:     logger.With(slog.String("component", "refresher")),
		state:      RefresherStopped,
	}
}

// State returns the current lifecycle state.
func (r *Refresher) State() RefresherState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start arms the refresh timer.
//
// Description:
//
//	Transitions stopped->scheduled and launches the tick loop.
//	Starting an already-started refresher returns ErrRefresherRunning.
//
// Outputs:
//
//	error - Non-nil if already started.
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RefresherStopped {
		return ErrRefresherRunning
	}

	r.state = RefresherScheduled
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.stopOnce = new(sync.Once)
	go r.loop(r.stopCh, r.doneCh)

	r.logger.Info("background refresh scheduled",
		slog.Duration("interval", r.interval),
	)
	return nil
}

// Stop disarms the timer unconditionally, cancels any in-flight cycle,
// and waits for everything to settle. Idempotent and safe to call from
// several goroutines at once: every caller returns only after the
// refresher has fully stopped.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return
	}
	stopCh, doneCh, once := r.stopCh, r.doneCh, r.stopOnce
	r.mu.Unlock()

	// Concurrent callers can all get past the check above; the per-start
	// Once ensures only one of them closes the channel.
	once.Do(func() { close(stopCh) })
	<-doneCh
	r.cycleWg.Wait()

	r.mu.Lock()
	// Only the generation we stopped is torn down; a racing Start may
	// already have installed fresh channels.
	stopped := r.stopCh == stopCh
	if stopped {
		r.state = RefresherStopped
		r.stopCh, r.doneCh = nil, nil
	}
	r.mu.Unlock()

	if stopped {
		r.logger.Info("background refresh stopped")
	}
}

func (r *Refresher) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.tick(stopCh)
		}
	}
}

// tick launches one refresh cycle if the refresher is idle and consent
// still holds; otherwise the tick is dropped.
func (r *Refresher) tick(stopCh <-chan struct{}) {
	r.mu.Lock()
	if r.state != RefresherScheduled {
		r.mu.Unlock()
		refreshTicksTotal.WithLabelValues(tickOutcomeSkipBusy).Inc()
		r.logger.Debug("refresh tick skipped, cycle already running")
		return
	}
	if !r.hasConsent() {
		r.mu.Unlock()
		refreshTicksTotal.WithLabelValues(tickOutcomeSkipNoAuth).Inc()
		r.logger.Debug("refresh tick skipped, consent not held")
		return
	}
	r.state = RefresherRunning
	r.cycleWg.Add(1)
	r.mu.Unlock()

	// The cycle runs off the tick loop so later ticks can observe the
	// running state and skip themselves.
	go func() {
		defer r.cycleWg.Done()
		defer func() {
			r.mu.Lock()
			// Stop may have fired mid-cycle; never resurrect a stopped state.
			if r.state == RefresherRunning {
				r.state = RefresherScheduled
			}
			r.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		start := time.Now()
		if _, err := r.orch.CollectBackground(ctx); err != nil {
			refreshTicksTotal.WithLabelValues(tickOutcomeFailed).Inc()
			r.logger.Warn("background refresh cycle failed",
				slog.String("error", err.Error()),
			)
			return
		}

		refreshTicksTotal.WithLabelValues(tickOutcomeRun).Inc()
		refreshCycleDuration.Observe(time.Since(start).Seconds())
	}()
}
