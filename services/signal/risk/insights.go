// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import "fmt"

// Score bands for insight generation.
const (
	bandMedium = 40
	bandHigh   = 70
)

// sourceLabels are the user-facing names for insight text.
var sourceLabels = map[string]string{
	"digital_footprint": "digital footprint",
	"device_profile":    "device security",
	"location":          "location stability",
	"utility":           "payment behavior",
}

// insightRule holds the banded messages for one source.
type insightRule struct {
	low, medium, high string
	recommendHigh     string
}

var insightRules = map[string]insightRule{
	"digital_footprint": {
		low:           "established digital footprint with verified payment methods",
		medium:        "moderate digital footprint, limited payment history visible",
		high:          "thin digital footprint, little payment evidence found",
		recommendHigh: "link an active payment method to strengthen the footprint signal",
	},
	"device_profile": {
		low:           "device security posture is strong",
		medium:        "device security posture has gaps",
		high:          "device security posture is weak or compromised",
		recommendHigh: "enable a screen lock and disable developer options",
	},
	"location": {
		low:           "location pattern indicates a stable residence area",
		medium:        "location signal available but low precision",
		high:          "location signal too weak to support stability",
		recommendHigh: "allow coarse location access for a stronger stability signal",
	},
	"utility": {
		low:           "recurring payments are consistently on time",
		medium:        "recurring payment history shows occasional delays",
		high:          "recurring payment history shows frequent missed payments",
		recommendHigh: "bring recurring bills current before reapplying",
	},
}

// generateInsights produces banded, human-readable findings in source
// registration order, so output is deterministic for a given profile.
func (a *Aggregator) generateInsights(scores map[string]int) (insights, recommendations []string) {
	for _, id := range a.order {
		score, ok := scores[id]
		if !ok {
			continue
		}
		rule, ok := insightRules[id]
		if !ok {
			label := sourceLabels[id]
			if label == "" {
				label = id
			}
			insights = append(insights, fmt.Sprintf("%s component score %d", label, score))
			continue
		}

		switch {
		case score < bandMedium:
			insights = append(insights, rule.low)
		case score < bandHigh:
			insights = append(insights, rule.medium)
		default:
			insights = append(insights, rule.high)
			if rule.recommendHigh != "" {
				recommendations = append(recommendations, rule.recommendHigh)
			}
		}
	}
	return insights, recommendations
}
