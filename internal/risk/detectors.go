package risk

import (
	"math"
	"time"

	"economy-sentinel/internal/config"
)

const (
	PatternRapidBetting       = "rapid_betting"
	PatternConsistentWins     = "consistent_wins"
	PatternUnusualBetSizing   = "unusual_bet_sizing"
	PatternPerfectTiming      = "perfect_timing"
	PatternImpossibleWinRate  = "impossible_win_rate"
	PatternStatisticalAnomaly = "statistical_anomaly"
)

type HouseEdges interface {
	HouseEdge(gameType string) float64
}

type Finding struct {
	Pattern string
	Score   float64
}

// Detect runs every detector against the profile. Profiles with fewer than
// cfg.MinActions actions produce no findings.
func Detect(p Profile, gameType string, now time.Time, cfg config.RiskConfig, edges HouseEdges) []Finding {
	if len(p.Actions) < cfg.MinActions {
		return nil
	}
	edge := 0.03
	if edges != nil {
		edge = edges.HouseEdge(gameType)
	}

	scores := []Finding{
		{Pattern: PatternRapidBetting, Score: RapidBetting(p, now, cfg)},
		{Pattern: PatternConsistentWins, Score: ConsistentWins(p, gameType, cfg)},
		{Pattern: PatternUnusualBetSizing, Score: UnusualBetSizing(p, gameType, cfg)},
		{Pattern: PatternPerfectTiming, Score: PerfectTiming(p, cfg)},
		{Pattern: PatternImpossibleWinRate, Score: ImpossibleWinRate(p, gameType, edge, cfg)},
		{Pattern: PatternStatisticalAnomaly, Score: StatisticalAnomaly(p, gameType, cfg)},
	}
	findings := scores[:0]
	for _, finding := range scores {
		if finding.Score > 0 {
			findings = append(findings, finding)
		}
	}
	return findings
}

// RapidBetting scores more than cfg.RapidBetCount bets inside the trailing window.
func RapidBetting(p Profile, now time.Time, cfg config.RiskConfig) float64 {
	cutoff := now.Add(-time.Duration(cfg.RapidBetWindowSeconds) * time.Second)
	count := 0
	for _, action := range p.Actions {
		if action.Action != ActionBet {
			continue
		}
		if action.Timestamp.After(cutoff) && !action.Timestamp.After(now) {
			count++
		}
	}
	if count <= cfg.RapidBetCount {
		return 0
	}
	return math.Min(50, float64(count*5))
}

// ConsistentWins scores the longest win streak among the most recent results.
func ConsistentWins(p Profile, gameType string, cfg config.RiskConfig) float64 {
	results := lastMatching(p.Actions, cfg.WinStreakWindow, func(a GameAction) bool {
		return a.GameType == gameType && a.Result != ""
	})
	longest, current := 0, 0
	for _, action := range results {
		if action.Result == ResultWin {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	if longest <= cfg.WinStreakThreshold {
		return 0
	}
	return math.Min(60, float64(longest*8))
}

// UnusualBetSizing flags bot-like flat bets and suspiciously round amounts.
func UnusualBetSizing(p Profile, gameType string, cfg config.RiskConfig) float64 {
	bets := lastMatching(p.Actions, cfg.BetSizingWindow, func(a GameAction) bool {
		return a.GameType == gameType && a.BetAmount > 0
	})
	minBets := cfg.MinActions
	if minBets < 2 {
		minBets = 2
	}
	if len(bets) < minBets {
		return 0
	}

	values := make([]float64, len(bets))
	round := 0
	for i, bet := range bets {
		values[i] = float64(bet.BetAmount)
		if bet.BetAmount%1000 == 0 {
			round++
		}
	}
	mean, variance := meanVariance(values)
	if mean > 1000 && math.Sqrt(variance) < mean*0.01 {
		return 25
	}
	if float64(round)/float64(len(bets)) > 0.8 {
		return 15
	}
	return 0
}

// PerfectTiming flags near-constant gaps between closely spaced actions.
func PerfectTiming(p Profile, cfg config.RiskConfig) float64 {
	maxGap := time.Duration(cfg.TimingMaxGapSeconds) * time.Second
	var deltas []float64
	for i := 1; i < len(p.Actions); i++ {
		delta := p.Actions[i].Timestamp.Sub(p.Actions[i-1].Timestamp)
		if delta < 0 || delta >= maxGap {
			continue
		}
		deltas = append(deltas, float64(delta.Milliseconds()))
	}
	if len(deltas) < cfg.TimingMinSamples {
		return 0
	}
	_, variance := meanVariance(deltas)
	if variance < cfg.TimingMaxVariance {
		return 40
	}
	return 0
}

// ImpossibleWinRate compares the observed win rate with the game's RTP.
func ImpossibleWinRate(p Profile, gameType string, houseEdge float64, cfg config.RiskConfig) float64 {
	stats, ok := p.Games[gameType]
	if !ok || stats.TotalGames < cfg.WinRateMinGames || stats.TotalGames == 0 {
		return 0
	}
	observed := float64(stats.Wins) / float64(stats.TotalGames)
	expected := 1 - houseEdge
	if observed <= expected+cfg.WinRateMargin {
		return 0
	}
	return math.Min(70, (observed-expected)*200)
}

// StatisticalAnomaly counts high multipliers against the expected baseline rate.
func StatisticalAnomaly(p Profile, gameType string, cfg config.RiskConfig) float64 {
	recent := lastMatching(p.Actions, cfg.AnomalyWindow, func(a GameAction) bool {
		return a.GameType == gameType
	})
	if len(recent) == 0 {
		return 0
	}
	count := 0
	for _, action := range recent {
		if action.Multiplier > cfg.AnomalyMultiplier {
			count++
		}
	}
	expected := float64(len(recent)) * cfg.AnomalyBaselineRate
	if count == 0 || float64(count) <= expected*3 {
		return 0
	}
	return math.Min(50, float64(count*10))
}

func lastMatching(actions []GameAction, limit int, match func(GameAction) bool) []GameAction {
	var out []GameAction
	for i := len(actions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if match(actions[i]) {
			out = append(out, actions[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func meanVariance(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, variance / float64(len(values))
}
