// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package risk converts a composite signal profile into a weighted
// risk assessment with insights and a confidence figure.
package risk

// Basis identifies which scoring path produced an assessment.
type Basis string

const (
	// BasisRemote means the remote scoring backend's score was used.
	BasisRemote Basis = "remote"

	// BasisLocalFallback means the on-device weighted sum was used.
	BasisLocalFallback Basis = "local-fallback"
)

// Assessment is the derived, read-only risk result for one profile
// snapshot. A new computation produces a new Assessment; nothing
// mutates one after creation.
type Assessment struct {
	// OverallScore is the composite risk score, 0-100, higher = riskier.
	OverallScore int `json:"overall_score"`

	// ComponentScores maps source ID to its 0-100 contribution.
	ComponentScores map[string]int `json:"component_scores"`

	// Confidence is the fraction of sources that completed
	// successfully in the backing profile, 0-1.
	Confidence float64 `json:"confidence"`

	// Insights are human-readable findings in source registration order.
	Insights []string `json:"insights"`

	// Recommendations are actionable follow-ups, same ordering.
	Recommendations []string `json:"recommendations"`

	// GeneratedAt is when the assessment was computed (Unix ms UTC).
	GeneratedAt int64 `json:"generated_at"`

	// Basis records whether the remote backend or the local fallback
	// produced the overall score.
	Basis Basis `json:"basis"`
}
