// Package payout holds the target house edge for each game type and turns a
// base multiplier into a fair payout.
package payout

import (
	"math"
	"strings"

	"economy-sentinel/internal/config"
)

type Table struct {
	edges       map[string]float64
	lottery     map[string]struct{}
	defaultEdge float64
	minRatio    float64
}

func New(cfg config.PayoutConfig) *Table {
	t := &Table{
		edges:       make(map[string]float64, len(cfg.HouseEdges)),
		lottery:     make(map[string]struct{}, len(cfg.LotteryGames)),
		defaultEdge: cfg.DefaultHouseEdge,
		minRatio:    cfg.MinPayoutRatio,
	}
	if t.defaultEdge <= 0 {
		t.defaultEdge = 0.03
	}
	for game, edge := range cfg.HouseEdges {
		t.edges[normalize(game)] = edge
	}
	for _, game := range cfg.LotteryGames {
		t.lottery[normalize(game)] = struct{}{}
	}
	return t
}

// HouseEdge returns the configured edge, or the default for unknown games.
func (t *Table) HouseEdge(gameType string) float64 {
	if edge, ok := t.edges[normalize(gameType)]; ok {
		return edge
	}
	return t.defaultEdge
}

// RTP is the share of stakes returned to players once adjustment is added
// to the table edge.
func (t *Table) RTP(gameType string, adjustment float64) float64 {
	return 1 - t.effectiveEdge(gameType, adjustment)
}

func (t *Table) IsLottery(gameType string) bool {
	_, ok := t.lottery[normalize(gameType)]
	return ok
}

// CalculateFairPayout applies the house edge to bet*baseMultiplier. Payouts
// for non-lottery games never fall below minRatio of the stake.
func (t *Table) CalculateFairPayout(gameType string, betAmount int64, baseMultiplier float64) int64 {
	return t.calculate(gameType, betAmount, baseMultiplier, t.HouseEdge(gameType))
}

// CalculateWithAdjustment is CalculateFairPayout with extra edge added on top
// of the table value, clamped to [0, 1).
func (t *Table) CalculateWithAdjustment(gameType string, betAmount int64, baseMultiplier, adjustment float64) int64 {
	return t.calculate(gameType, betAmount, baseMultiplier, t.effectiveEdge(gameType, adjustment))
}

func (t *Table) effectiveEdge(gameType string, adjustment float64) float64 {
	return math.Min(0.99, math.Max(0, t.HouseEdge(gameType)+adjustment))
}

func (t *Table) calculate(gameType string, betAmount int64, baseMultiplier, edge float64) int64 {
	if betAmount <= 0 || baseMultiplier <= 0 {
		return 0
	}
	payout := float64(betAmount) * baseMultiplier * (1 - edge)
	if !t.IsLottery(gameType) && t.minRatio > 0 {
		payout = math.Max(payout, float64(betAmount)*t.minRatio)
	}
	return int64(math.Round(payout))
}

func normalize(gameType string) string {
	return strings.ToLower(strings.TrimSpace(gameType))
}
