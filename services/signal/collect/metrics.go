// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_refresh_ticks_total",
		Help: "Background refresh ticks by outcome",
	}, []string{"outcome"})

	refreshCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_refresh_cycle_duration_seconds",
		Help:    "Duration of background refresh cycles",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Refresh tick outcomes.
const (
	tickOutcomeRun        = "run"
	tickOutcomeSkipBusy   = "skipped_running"
	tickOutcomeSkipNoAuth = "skipped_no_consent"
	tickOutcomeFailed     = "failed"
)
