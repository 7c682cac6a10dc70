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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/meridianscore/meridian/services/signal/source"
)

var (
	tracer = otel.Tracer("meridian.collect")
	meter  = otel.Meter("meridian.collect")
)

// flightKey is the singleflight key for collection cycles. There is one
// cache slot per session, so there is exactly one flight.
const flightKey = "collect_all"

// Orchestrator fans out to every registered collector concurrently and
// fans the settled results into one Profile.
//
// Description:
//
//	Each collector call runs in its own goroutine under a bounded
//	per-collector timeout. The cycle waits for ALL collectors to
//	settle; an individual failure never short-circuits the cycle
//	(partial-success semantics). Concurrent CollectAll calls join the
//	in-flight cycle via singleflight instead of starting a second
//	overlapping cycle against the same cache slot.
//
// Thread Safety: Safe for concurrent use.
type Orchestrator struct {
	collectors []source.Collector
	cache      Cache
	hasConsent source.ConsentQuery
	logger     *slog.Logger

	// writePolicy, when non-nil, is consulted before a background
	// cycle overwrites the cache. Explicit cycles always write.
	writePolicy func() bool

	flight singleflight.Group

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	cycleLatency  metric.Float64Histogram
	sourceLatency metric.Float64Histogram
	sourceResults metric.Int64Counter
}

// NewOrchestrator creates a collection orchestrator.
//
// Inputs:
//
//	collectors - The registered collectors. Must not be empty.
//	cache - Profile sink. Must not be nil.
//	hasConsent - Consent query. Must not be nil.
//	logger - Logger. If nil, uses slog.Default().
//
// Outputs:
//
//	*Orchestrator - The orchestrator.
//	error - Non-nil if no collectors are registered.
func NewOrchestrator(collectors []source.Collector, cache Cache, hasConsent source.ConsentQuery, logger *slog.Logger) (*Orchestrator, error) {
	if len(collectors) == 0 {
		return nil, ErrNoCollectors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		collectors: collectors,
		cache:      cache,
		hasConsent: hasConsent,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}, nil
}

// SetWritePolicy installs the background-cycle cache write policy.
// Must be called before the orchestrator is shared across goroutines.
func (o *Orchestrator) SetWritePolicy(fn func() bool) {
	o.writePolicy = fn
}

// SourceIDs returns the registered source IDs in registration order.
func (o *Orchestrator) SourceIDs() []string {
	ids := make([]string, len(o.collectors))
	for i, c := range o.collectors {
		ids[i] = c.ID()
	}
	return ids
}

// initMetrics lazily initializes meters; failures degrade observability
// but never block collection.
func (o *Orchestrator) initMetrics() {
	o.metricsOnce.Do(func() {
		var err error
		o.cycleLatency, err = meter.Float64Histogram("collect_cycle_duration_seconds",
			metric.WithDescription("Total collection cycle time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			o.logger.Error("init cycle latency metric failed", slog.String("error", err.Error()))
		}
		o.sourceLatency, err = meter.Float64Histogram("collect_source_duration_seconds",
			metric.WithDescription("Per-source collection time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			o.logger.Error("init source latency metric failed", slog.String("error", err.Error()))
		}
		o.sourceResults, err = meter.Int64Counter("collect_source_results_total",
			metric.WithDescription("Source results by terminal status"),
		)
		if err != nil {
			o.logger.Error("init source results metric failed", slog.String("error", err.Error()))
		}
	})
}

// CollectAll runs one explicit collection cycle.
//
// Description:
//
//	Fans out to all collectors, waits for every result to settle,
//	assembles the Profile, and writes it to the cache as a single
//	atomic replacement - provided consent still holds at write time.
//	A revocation while the cycle is in flight lets the cycle finish
//	but drops the cache write.
//
// Inputs:
//
//	ctx - Context for the cycle. Must not be nil.
//
// Outputs:
//
//	*Profile - The assembled profile, also on soft cache-write failure.
//	error - ErrNoConsent when no grant is held at cycle start.
func (o *Orchestrator) CollectAll(ctx context.Context) (*Profile, error) {
	return o.run(ctx, false)
}

// CollectBackground runs a refresher-initiated cycle. Identical to
// CollectAll except the cache write additionally consults the
// configured write policy.
func (o *Orchestrator) CollectBackground(ctx context.Context) (*Profile, error) {
	return o.run(ctx, true)
}

func (o *Orchestrator) run(ctx context.Context, background bool) (*Profile, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if !o.hasConsent() {
		return nil, ErrNoConsent
	}

	// Concurrent callers join the in-flight cycle rather than racing a
	// second cycle against the same cache slot.
	v, err, shared := o.flight.Do(flightKey, func() (any, error) {
		return o.cycle(ctx, background)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.logger.Debug("joined in-flight collection cycle")
	}
	return v.(*Profile), nil
}

// cycle performs the actual fan-out/fan-in for one collection cycle.
func (o *Orchestrator) cycle(ctx context.Context, background bool) (*Profile, error) {
	o.initMetrics()

	cycleID := uuid.NewString()[:12]

	ctx, span := tracer.Start(ctx, "collect.Cycle",
		trace.WithAttributes(
			attribute.String("cycle_id", cycleID),
			attribute.Int("sources", len(o.collectors)),
			attribute.Bool("background", background),
		),
	)
	defer span.End()

	start := time.Now()
	o.logger.Info("collection cycle started",
		slog.String("cycle_id", cycleID),
		slog.Int("sources", len(o.collectors)),
		slog.Bool("background", background),
	)

	results := make([]source.Result, len(o.collectors))
	var wg sync.WaitGroup
	for i, c := range o.collectors {
		wg.Add(1)
		go func(idx int, col source.Collector) {
			defer wg.Done()
			results[idx] = o.collectOne(ctx, col, cycleID)
		}(i, c)
	}
	wg.Wait()

	profile := &Profile{
		Sources:     make(map[string]source.Result, len(results)),
		AssembledAt: time.Now().UnixMilli(),
		CycleID:     cycleID,
	}
	for _, res := range results {
		profile.Sources[res.SourceID] = res
	}

	duration := time.Since(start)
	if o.cycleLatency != nil {
		o.cycleLatency.Record(ctx, duration.Seconds())
	}

	o.writeCache(ctx, profile, background, span)

	o.logger.Info("collection cycle completed",
		slog.String("cycle_id", cycleID),
		slog.Duration("duration", duration),
		slog.Int("success", profile.SuccessCount()),
		slog.Int("sources", len(profile.Sources)),
	)
	span.SetStatus(codes.Ok, "")

	return profile, nil
}

// writeCache persists the assembled profile unless consent was revoked
// mid-cycle or the background write policy declines. A persistence
// failure is soft: logged, and the profile is still returned to the
// caller; the next cycle retries.
func (o *Orchestrator) writeCache(ctx context.Context, profile *Profile, background bool, span trace.Span) {
	if !o.hasConsent() {
		o.logger.Warn("consent revoked mid-cycle, dropping cache write",
			slog.String("cycle_id", profile.CycleID),
		)
		span.AddEvent("cache_write_dropped", trace.WithAttributes(
			attribute.String("reason", "consent_revoked"),
		))
		return
	}
	if background && o.writePolicy != nil && !o.writePolicy() {
		o.logger.Debug("background cache write declined by policy",
			slog.String("cycle_id", profile.CycleID),
		)
		span.AddEvent("cache_write_dropped", trace.WithAttributes(
			attribute.String("reason", "write_policy"),
		))
		return
	}
	if err := o.cache.SetProfile(ctx, profile); err != nil {
		o.logger.Error("cache write failed, profile served from memory",
			slog.String("cycle_id", profile.CycleID),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
	}
}

// collectOne runs a single collector under its timeout budget.
func (o *Orchestrator) collectOne(ctx context.Context, col source.Collector, cycleID string) source.Result {
	ctx, span := tracer.Start(ctx, "collect."+col.ID(),
		trace.WithAttributes(
			attribute.String("source", col.ID()),
			attribute.String("cycle_id", cycleID),
		),
	)
	defer span.End()

	timeout := col.Timeout()
	colCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan source.Result, 1)
	go func() {
		done <- col.Collect(colCtx)
	}()

	var res source.Result
	select {
	case res = <-done:
		// A collector may also self-report a timeout via the context.
	case <-colCtx.Done():
		res = source.Result{
			SourceID:    col.ID(),
			Status:      source.StatusTimedOut,
			CollectedAt: time.Now().UnixMilli(),
			Err:         source.ErrSourceTimeout.Error(),
		}
	}

	duration := time.Since(start)
	if o.sourceLatency != nil {
		o.sourceLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("source", col.ID())),
		)
	}
	if o.sourceResults != nil {
		o.sourceResults.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("source", col.ID()),
				attribute.String("status", string(res.Status)),
			),
		)
	}

	if res.Status.Usable() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(res.Status))
		o.logger.Warn("source did not complete",
			slog.String("source", col.ID()),
			slog.String("status", string(res.Status)),
			slog.String("error", res.Err),
			slog.Duration("duration", duration),
		)
	}

	return res
}
