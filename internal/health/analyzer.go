// Package health samples the ledger on an interval, scores economic
// stability and drives emergency mode through the global controls.
package health

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"economy-sentinel/internal/config"
	"economy-sentinel/internal/controls"
	"economy-sentinel/internal/ledger"
	"economy-sentinel/internal/metrics"
	"economy-sentinel/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Snapshot struct {
	At            time.Time
	Users         int
	TotalWealth   int64
	Gini          float64
	Concentration float64
	HouseEdge     float64
	HasWagers     bool
	Velocity      float64
	DailyLoss     float64
	Stability     float64
	Breakers      []Breaker
}

type Verdict struct {
	Enter   bool
	Recover bool
	Reason  string
}

// Decide compares a snapshot with the current controls. Emergency is entered
// only when a critical breaker fires and stability is below the ceiling; a
// healthy score without extreme indicators always wins.
func Decide(s Snapshot, state controls.State, cfg config.AnalysisConfig) Verdict {
	var critical []string
	for _, breaker := range s.Breakers {
		if breaker.Critical {
			critical = append(critical, breaker.Detail)
		}
	}

	if !state.EmergencyActive {
		if len(critical) == 0 || s.Stability >= cfg.EmergencyScoreCeiling {
			return Verdict{}
		}
		if s.Stability > cfg.SafetyOverrideScore && !Extreme(s, cfg.Rubric) {
			return Verdict{}
		}
		return Verdict{Enter: true, Reason: strings.Join(critical, "; ")}
	}

	if state.Manual {
		return Verdict{}
	}
	if len(critical) == 0 && s.Stability >= cfg.EmergencyScoreCeiling {
		return Verdict{Recover: true, Reason: "economic indicators back within limits"}
	}
	return Verdict{}
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Analyzer struct {
	cfg      config.AnalysisConfig
	ledger   ledger.Ledger
	controls *controls.Controls
	losses   *utils.RollingSum
	logger   *zap.Logger
	clock    Clock
	last     atomic.Pointer[Snapshot]
}

func NewAnalyzer(cfg config.AnalysisConfig, source ledger.Ledger, ctrl *controls.Controls, losses *utils.RollingSum, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		cfg:      cfg,
		ledger:   source,
		controls: ctrl,
		losses:   losses,
		logger:   logger,
		clock:    realClock{},
	}
}

// WithClock must be called before Run.
func (a *Analyzer) WithClock(clock Clock) {
	a.clock = clock
}

// Sample gathers aggregates from the ledger and scores them.
func (a *Analyzer) Sample(ctx context.Context) (Snapshot, error) {
	exclusion := ledger.Exclusion{
		UserIDs:       a.cfg.Exclusions.UserIDs,
		WealthCeiling: a.cfg.Exclusions.WealthCeiling,
	}

	var wealth []int64
	var totals ledger.Totals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wealth, err = a.ledger.WealthDistribution(gctx, exclusion)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = a.ledger.WagerTotals(gctx, exclusion)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	now := a.clock.Now()
	s := Snapshot{
		At:            now,
		Users:         len(wealth),
		Gini:          Gini(wealth),
		Concentration: Concentration(wealth, a.cfg.TopShare),
		HouseEdge:     HouseEdge(totals),
		HasWagers:     totals.Wagered > 0,
	}
	for _, v := range wealth {
		s.TotalWealth += v
	}
	s.Velocity = Velocity(totals, s.TotalWealth)
	if a.losses != nil {
		s.DailyLoss = a.losses.Sum(now)
	}
	s.Stability = StabilityScore(s, a.cfg.Rubric, a.cfg.DefaultScore)
	s.Breakers = CheckBreakers(s, a.cfg.Breakers)
	return s, nil
}

// PerformAnalysis runs one cycle. A ledger failure leaves the controls
// untouched.
func (a *Analyzer) PerformAnalysis(ctx context.Context) (Snapshot, error) {
	s, err := a.Sample(ctx)
	if err != nil {
		a.logger.Warn("economic analysis skipped", zap.Error(err))
		return Snapshot{}, err
	}
	a.last.Store(&s)

	metrics.Indicators.WithLabelValues("gini").Set(s.Gini)
	metrics.Indicators.WithLabelValues("concentration").Set(s.Concentration)
	metrics.Indicators.WithLabelValues("house_edge").Set(s.HouseEdge)
	metrics.Indicators.WithLabelValues("velocity").Set(s.Velocity)
	metrics.Indicators.WithLabelValues("total_wealth").Set(float64(s.TotalWealth))
	metrics.Indicators.WithLabelValues("daily_loss").Set(s.DailyLoss)

	a.controls.SetHealthScore(s.Stability)
	verdict := Decide(s, a.controls.Snapshot(), a.cfg)
	switch {
	case verdict.Enter:
		a.controls.Activate(ctx, verdict.Reason, false)
	case verdict.Recover:
		a.controls.Deactivate(ctx, verdict.Reason, false)
	}

	a.logger.Info("economic analysis",
		zap.Int("users", s.Users),
		zap.Float64("stability", s.Stability),
		zap.Float64("gini", s.Gini),
		zap.Float64("concentration", s.Concentration),
		zap.Float64("house_edge", s.HouseEdge),
		zap.Int("breakers", len(s.Breakers)),
	)
	return s, nil
}

// Last returns the most recent successful snapshot.
func (a *Analyzer) Last() (Snapshot, bool) {
	s := a.last.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Run performs an analysis on every tick until ctx is done.
func (a *Analyzer) Run(ctx context.Context, ticker utils.Ticker) {
	utils.RunEvery(ctx, ticker, func(time.Time) {
		_, _ = a.PerformAnalysis(ctx)
	})
}
