package engine

import (
	"math"
	"sort"

	"tripscore/internal/config"
	"tripscore/internal/model"
)

type Scores struct {
	Overall         int
	Categories      []model.CategoryScore
	Recommendations []string
}

// ScoreTrip converts aggregates and posted-limit violations into category
// scores, a weighted overall score and rule-driven recommendations. Category
// weights are read from cfg.Weights.
func ScoreTrip(agg model.Aggregates, violations []model.ViolationInterval, cfg config.ScoringConfig) Scores {
	weights := map[model.Category]float64{
		model.CategoryBraking:         cfg.Weights.Braking,
		model.CategorySpeedCompliance: cfg.Weights.SpeedCompliance,
		model.CategoryAcceleration:    cfg.Weights.Acceleration,
		model.CategoryCornering:       cfg.Weights.Cornering,
		model.CategorySignCompliance:  cfg.Weights.SignCompliance,
	}
	sources := map[model.Category]model.EventType{
		model.CategoryBraking:         model.EventHardBrake,
		model.CategorySpeedCompliance: model.EventOverspeed,
		model.CategoryAcceleration:    model.EventHarshAccel,
		model.CategoryCornering:       model.EventUnsafeCurve,
	}

	raw := make(map[model.Category]float64, len(model.Categories))
	out := Scores{Categories: make([]model.CategoryScore, 0, len(model.Categories))}
	var weighted, totalWeight float64
	for _, cat := range model.Categories {
		var count int
		var severity float64
		if et, ok := sources[cat]; ok {
			count = agg.Counts[et]
			severity = agg.TotalSeverity[et]
		} else {
			count = len(violations)
			for _, v := range violations {
				severity += v.Severity
			}
		}
		score := 100 - math.Min(100, severity*cfg.PenaltyFactor)
		raw[cat] = score
		w := weights[cat]
		weighted += score * w
		totalWeight += w
		out.Categories = append(out.Categories, model.CategoryScore{
			Category: cat,
			Score:    round1(score),
			Weight:   w,
			Events:   count,
			Severity: round1(severity),
		})
	}
	if totalWeight > 0 {
		out.Overall = clampScore(int(math.Round(weighted / totalWeight)))
	} else {
		out.Overall = 100
	}
	out.Recommendations = recommend(raw, cfg)
	return out
}

type firedRule struct {
	score float64
	order int
	msg   string
}

// recommend walks the rule table in order; every rule whose category scores
// below its threshold fires. Output is worst category first.
func recommend(scores map[model.Category]float64, cfg config.ScoringConfig) []string {
	fired := make([]firedRule, 0, len(cfg.Recommendations))
	for i, rule := range cfg.Recommendations {
		score, ok := scores[model.Category(rule.Category)]
		if !ok {
			continue
		}
		threshold := rule.Threshold
		if threshold == 0 {
			threshold = cfg.RecommendationThreshold
		}
		if score < threshold {
			fired = append(fired, firedRule{score: score, order: i, msg: rule.Message})
		}
	}
	sort.SliceStable(fired, func(i, j int) bool {
		if fired[i].score != fired[j].score {
			return fired[i].score < fired[j].score
		}
		return fired[i].order < fired[j].order
	})
	out := make([]string, 0, len(fired)+1)
	for _, f := range fired {
		out = append(out, f.msg)
	}
	if len(out) == 0 && cfg.FallbackRecommendation != "" {
		out = append(out, cfg.FallbackRecommendation)
	}
	return out
}

func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func RiskLevel(score int) string {
	switch {
	case score >= 80:
		return "low"
	case score >= 60:
		return "medium"
	default:
		return "high"
	}
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

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
