// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridianscore/meridian/services/signal/collect"
	"github.com/meridianscore/meridian/services/signal/source"
)

var tracer = otel.Tracer("meridian.risk")

// DefaultWeights is the fixed per-source weight table. Weights sum to 1.0.
var DefaultWeights = map[string]float64{
	source.IDDigitalFootprint: 0.25,
	source.IDDeviceProfile:    0.30,
	source.IDLocation:         0.20,
	source.IDUtility:          0.25,
}

// heuristicDamping is how far a score built on heuristic fields is
// pulled toward the neutral midpoint (50).
const heuristicDamping = 0.2

// Scorer is the remote scoring backend surface. A nil Scorer disables
// the remote path entirely.
type Scorer interface {
	// Score submits the profile and returns the backend's assessment.
	Score(ctx context.Context, profile *collect.Profile) (*Assessment, error)
}

// Aggregator computes risk assessments from composite profiles.
//
// Missing-source policy: a source without a usable payload is EXCLUDED
// from the weighted sum and the remaining weights are renormalized, so
// the achievable score range stays 0-100 regardless of how many sources
// settled. The alternative (dropping the weight and shrinking the
// ceiling) would make scores incomparable across profiles with
// different failure patterns.
//
// Thread Safety: Safe for concurrent use.
type Aggregator struct {
	weights map[string]float64
	order   []string
	remote  Scorer
	logger  *slog.Logger
}

// NewAggregator creates a risk aggregator.
//
// Inputs:
//
//	weights - Per-source weights. Nil uses DefaultWeights.
//	order - Source IDs in registration order; fixes insight ordering.
//	remote - Remote scoring backend. Nil disables the remote path.
//	logger - Logger. If nil, uses slog.Default().
func NewAggregator(weights map[string]float64, order []string, remote Scorer, logger *slog.Logger) *Aggregator {
	if weights == nil {
		weights = DefaultWeights
	}
	if len(order) == 0 {
		order = []string{source.IDDigitalFootprint, source.IDDeviceProfile, source.IDLocation, source.IDUtility}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		weights: weights,
		order:   order,
		remote:  remote,
		logger:  logger.With(slog.String("component", "risk_aggregator")),
	}
}

// ComputeRisk derives an Assessment from one profile snapshot.
//
// Description:
//
//	Scores each usable source 0-100, combines them with the weight
//	table (renormalized over present sources), and generates banded
//	insights. When the remote backend answers, its score supersedes
//	the local weighted sum and Basis is "remote"; any backend failure
//	falls back to the local path with Basis "local-fallback".
//
// Inputs:
//
//	ctx - Context for the remote call. Must not be nil.
//	profile - The profile snapshot. Must not be nil.
//
// Outputs:
//
//	*Assessment - The computed assessment.
//	error - ErrInsufficientData when no source is usable.
func (a *Aggregator) ComputeRisk(ctx context.Context, profile *collect.Profile) (*Assessment, error) {
	if profile == nil {
		return nil, ErrNilProfile
	}

	ctx, span := tracer.Start(ctx, "risk.ComputeRisk",
		trace.WithAttributes(
			attribute.String("cycle_id", profile.CycleID),
			attribute.Int("sources", len(profile.Sources)),
		),
	)
	defer span.End()

	scores := a.componentScores(profile)
	if len(scores) == 0 {
		span.SetStatus(codes.Error, ErrInsufficientData.Error())
		return nil, ErrInsufficientData
	}

	confidence := a.confidence(profile)
	insights, recommendations := a.generateInsights(scores)

	local := a.combine(scores)

	assessment := &Assessment{
		OverallScore:    local,
		ComponentScores: scores,
		Confidence:      confidence,
		Insights:        insights,
		Recommendations: recommendations,
		GeneratedAt:     time.Now().UnixMilli(),
		Basis:           BasisLocalFallback,
	}

	if a.remote != nil {
		remote, err := a.remote.Score(ctx, profile)
		switch {
		case err == nil:
			assessment.OverallScore = remote.OverallScore
			assessment.Basis = BasisRemote
			if len(remote.ComponentScores) > 0 {
				assessment.ComponentScores = remote.ComponentScores
			}
			if remote.Confidence > 0 {
				assessment.Confidence = remote.Confidence
			}
			if len(remote.Insights) > 0 {
				assessment.Insights = remote.Insights
				assessment.Recommendations = remote.Recommendations
			}
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			span.AddEvent("remote_fallback", trace.WithAttributes(
				attribute.String("error", err.Error()),
			))
			a.logger.Warn("remote scoring failed, using local fallback",
				slog.String("error", err.Error()),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("overall_score", assessment.OverallScore),
		attribute.Float64("confidence", assessment.Confidence),
		attribute.String("basis", string(assessment.Basis)),
	)
	span.SetStatus(codes.Ok, "")

	a.logger.Info("risk assessment computed",
		slog.Int("overall_score", assessment.OverallScore),
		slog.Float64("confidence", assessment.Confidence),
		slog.String("basis", string(assessment.Basis)),
	)

	return assessment, nil
}

// combine applies the weight table to the component scores, with
// renormalization over the sources actually present.
func (a *Aggregator) combine(scores map[string]int) int {
	var weighted, totalWeight float64
	for id, score := range scores {
		w, ok := a.weights[id]
		if !ok {
			continue
		}
		weighted += float64(score) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return clampScore(int(math.Round(weighted / totalWeight)))
}

// confidence is the fraction of registered sources with status success.
func (a *Aggregator) confidence(profile *collect.Profile) float64 {
	if len(a.order) == 0 {
		return 0
	}
	success := 0
	for _, id := range a.order {
		if res, ok := profile.Sources[id]; ok && res.Status == source.StatusSuccess {
			success++
		}
	}
	return float64(success) / float64(len(a.order))
}

// componentScores scores every usable source in the profile.
func (a *Aggregator) componentScores(profile *collect.Profile) map[string]int {
	scores := make(map[string]int)
	for _, id := range a.order {
		res, ok := profile.Sources[id]
		if !ok || !res.Status.Usable() {
			continue
		}
		score, ok := scoreComponent(res)
		if !ok {
			continue
		}
		scores[id] = score
	}
	return scores
}

// scoreComponent derives the 0-100 component score for one result.
// Scores built on heuristic fields are damped toward the midpoint.
func scoreComponent(res source.Result) (int, bool) {
	var score float64
	switch res.SourceID {
	case source.IDDeviceProfile:
		score = scoreDevice(res.Payload)
	case source.IDLocation:
		score = scoreLocation(res.Payload)
	case source.IDDigitalFootprint:
		score = scoreFootprint(res.Payload)
	case source.IDUtility:
		score = scoreUtility(res.Payload)
	default:
		return 0, false
	}

	if len(res.HeuristicFields()) > 0 {
		score += (50 - score) * heuristicDamping
	}
	return clampScore(int(math.Round(score))), true
}

// scoreDevice derives risk from the security posture flags.
func scoreDevice(payload map[string]any) float64 {
	score := 10.0
	if v, ok := payload["screen_lock"].(bool); ok && !v {
		score += 25
	}
	if v, ok := payload["biometrics"].(bool); ok && !v {
		score += 10
	}
	if v, ok := payload["developer_mode"].(bool); ok && v {
		score += 15
	}
	if v, ok := payload["rooted"].(bool); ok && v {
		score += 40
	}
	return score
}

// scoreLocation derives risk from fix quality. A coarse fix is a weak
// but positive stability signal.
func scoreLocation(payload map[string]any) float64 {
	acc, ok := toFloat(payload["accuracy_m"])
	if !ok {
		return 50
	}
	// Worse accuracy means weaker stability evidence.
	switch {
	case acc <= 1000:
		return 20
	case acc <= 5000:
		return 35
	default:
		return 50
	}
}

// scoreFootprint derives risk from digital breadth: more established
// payment methods and accounts mean lower risk.
func scoreFootprint(payload map[string]any) float64 {
	score := 70.0
	if n, ok := toFloat(payload["payment_method_count"]); ok {
		score -= 15 * math.Min(n, 3)
	}
	if n, ok := toFloat(payload["account_count"]); ok && n > 0 {
		score -= 10
	}
	return score
}

// scoreUtility derives risk from on-time payment behavior.
func scoreUtility(payload map[string]any) float64 {
	ratio, ok := toFloat(payload["on_time_ratio"])
	if !ok {
		return 50
	}
	score := (1 - ratio) * 100
	if months, ok := toFloat(payload["months_observed"]); ok && months < 3 {
		// Too little history to trust a clean record.
		score = math.Max(score, 40)
	}
	return score
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// toFloat normalizes numeric payload values, which arrive as int before
// persistence and float64 after a JSON round-trip.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
