package health

import (
	"fmt"
	"math"
	"sort"

	"economy-sentinel/internal/config"
	"economy-sentinel/internal/ledger"
)

// Gini returns the Gini coefficient of the wealth list. Fewer than two
// holders or zero total wealth yields 0.
func Gini(wealth []int64) float64 {
	n := len(wealth)
	if n < 2 {
		return 0
	}
	sorted := append([]int64(nil), wealth...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum, weighted float64
	for i, v := range sorted {
		value := float64(v)
		sum += value
		weighted += float64(2*(i+1)-n-1) * value
	}
	if sum <= 0 {
		return 0
	}
	return weighted / (float64(n) * sum)
}

// Concentration returns the share of wealth held by the top topShare of
// holders, at least one holder.
func Concentration(wealth []int64, topShare float64) float64 {
	if len(wealth) == 0 {
		return 0
	}
	sorted := append([]int64(nil), wealth...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	top := int(math.Floor(float64(len(sorted)) * topShare))
	if top < 1 {
		top = 1
	}
	var total, held float64
	for i, v := range sorted {
		total += float64(v)
		if i < top {
			held += float64(v)
		}
	}
	if total <= 0 {
		return 0
	}
	return held / total
}

// HouseEdge is the realized edge: (wagered - won) / wagered, 0 without wagers.
func HouseEdge(totals ledger.Totals) float64 {
	if totals.Wagered == 0 {
		return 0
	}
	return float64(totals.Wagered-totals.Won) / float64(totals.Wagered)
}

func Velocity(totals ledger.Totals, totalWealth int64) float64 {
	if totalWealth <= 0 {
		return 0
	}
	return float64(totals.Wagered) / float64(totalWealth)
}

// StabilityScore applies the rubric to a snapshot's indicators. An empty
// economy scores defaultScore; house edge terms need wagering data.
func StabilityScore(s Snapshot, rubric config.StabilityRubric, defaultScore float64) float64 {
	if s.Users == 0 {
		return defaultScore
	}
	score := 100.0
	score -= firstAbove(rubric.Gini, s.Gini)
	score -= firstAbove(rubric.Concentration, s.Concentration)

	if s.HasWagers {
		edge := s.HouseEdge
		score -= firstBelow(rubric.HouseEdge, edge)
		switch {
		case edge >= rubric.HealthyEdgeMin && edge <= rubric.HealthyEdgeMax:
			score += rubric.HealthyEdgeBonus
		case edge > rubric.HealthyEdgeMax && edge <= rubric.GoodEdgeMax:
			score += rubric.GoodEdgeBonus
		case edge > rubric.ExcessiveEdge:
			score -= rubric.ExcessiveEdgePenalty
		}
	}
	return math.Max(0, math.Min(100, score))
}

// Extreme reports whether any indicator is in its extreme range.
func Extreme(s Snapshot, rubric config.StabilityRubric) bool {
	if s.Gini > rubric.ExtremeGini || s.Concentration > rubric.ExtremeConcentration {
		return true
	}
	return s.HasWagers && s.HouseEdge < rubric.ExtremeHouseEdge
}

type Breaker struct {
	Name     string
	Critical bool
	Detail   string
}

func CheckBreakers(s Snapshot, cfg config.BreakerConfig) []Breaker {
	var fired []Breaker
	if cfg.DailyLossCap > 0 && s.DailyLoss > float64(cfg.DailyLossCap) {
		fired = append(fired, Breaker{
			Name:     "daily_loss",
			Critical: cfg.DailyLossCritical,
			Detail:   fmt.Sprintf("house lost %.0f in the last day (cap %d)", s.DailyLoss, cfg.DailyLossCap),
		})
	}
	if cfg.ConcentrationCap > 0 && s.Concentration > cfg.ConcentrationCap {
		fired = append(fired, Breaker{
			Name:     "concentration",
			Critical: cfg.ConcentrationCritical,
			Detail:   fmt.Sprintf("top holders own %.1f%% of wealth (cap %.1f%%)", s.Concentration*100, cfg.ConcentrationCap*100),
		})
	}
	if s.HasWagers && s.HouseEdge < cfg.HouseEdgeFloor {
		fired = append(fired, Breaker{
			Name:     "house_edge",
			Critical: cfg.HouseEdgeCritical,
			Detail:   fmt.Sprintf("realized house edge %.2f%% below floor %.2f%%", s.HouseEdge*100, cfg.HouseEdgeFloor*100),
		})
	}
	return fired
}

// firstAbove returns the points of the first tier whose threshold value
// exceeds. Tiers are ordered from the most severe.
func firstAbove(tiers []config.PenaltyTier, value float64) float64 {
	for _, tier := range tiers {
		if value > tier.Threshold {
			return tier.Points
		}
	}
	return 0
}

func firstBelow(tiers []config.PenaltyTier, value float64) float64 {
	for _, tier := range tiers {
		if value < tier.Threshold {
			return tier.Points
		}
	}
	return 0
}
