package health

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"economy-sentinel/internal/config"
	"economy-sentinel/internal/controls"
	"economy-sentinel/internal/ledger"
	"economy-sentinel/internal/utils"

	"go.uber.org/zap"
)

func TestGiniEdgeCases(t *testing.T) {
	if got := Gini(nil); got != 0 {
		t.Fatalf("expected 0 for empty economy, got %f", got)
	}
	if got := Gini([]int64{1_000_000}); got != 0 {
		t.Fatalf("expected 0 for single holder, got %f", got)
	}
	if got := Gini([]int64{500, 500, 500}); got != 0 {
		t.Fatalf("expected 0 for equal wealth, got %f", got)
	}
	if got := Gini([]int64{100, 0, 0, 0}); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("expected 0.75, got %f", got)
	}
}

func TestConcentrationTopHolder(t *testing.T) {
	wealth := []int64{10, 10, 10, 10, 60}
	if got := Concentration(wealth, 0.01); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("expected top holder share 0.6, got %f", got)
	}
	if got := Concentration(nil, 0.01); got != 0 {
		t.Fatalf("expected 0 for empty economy, got %f", got)
	}
}

func TestStabilityScoreRubric(t *testing.T) {
	rubric := config.DefaultRubric()

	if got := StabilityScore(Snapshot{}, rubric, 75); got != 75 {
		t.Fatalf("expected neutral score for empty economy, got %f", got)
	}

	healthy := Snapshot{Users: 100, Gini: 0.3, Concentration: 0.05, HouseEdge: 0.04, HasWagers: true}
	if got := StabilityScore(healthy, rubric, 75); got != 100 {
		t.Fatalf("expected clamped 100, got %f", got)
	}

	losing := Snapshot{Users: 100, Gini: 0.85, Concentration: 0.7, HouseEdge: -0.06, HasWagers: true}
	// 100 - 30 - 10 - 40
	if got := StabilityScore(losing, rubric, 75); got != 20 {
		t.Fatalf("expected 20, got %f", got)
	}

	greedy := Snapshot{Users: 100, HouseEdge: 0.12, HasWagers: true}
	if got := StabilityScore(greedy, rubric, 75); got != 85 {
		t.Fatalf("expected excessive edge penalty, got %f", got)
	}
}

func TestDecide(t *testing.T) {
	cfg := config.DefaultConfig().Analysis
	critical := []Breaker{{Name: "house_edge", Critical: true, Detail: "edge below floor"}}

	low := Snapshot{Users: 10, Stability: 30, Breakers: critical}
	if v := Decide(low, controls.State{}, cfg); !v.Enter {
		t.Fatalf("expected emergency for critical breaker and low score")
	}

	nonCritical := Snapshot{Users: 10, Stability: 30, Breakers: []Breaker{{Name: "concentration"}}}
	if v := Decide(nonCritical, controls.State{}, cfg); v.Enter {
		t.Fatalf("expected non-critical breaker not to trigger emergency")
	}

	healthy := Snapshot{Users: 10, Stability: 90, Breakers: critical}
	if v := Decide(healthy, controls.State{}, cfg); v.Enter {
		t.Fatalf("expected safety override to suppress emergency")
	}

	resolved := Snapshot{Users: 10, Stability: 70}
	if v := Decide(resolved, controls.State{EmergencyActive: true}, cfg); !v.Recover {
		t.Fatalf("expected recovery when conditions resolve")
	}
	if v := Decide(resolved, controls.State{EmergencyActive: true, Manual: true}, cfg); v.Recover {
		t.Fatalf("expected manual emergency to be left alone")
	}
}

func TestCheckBreakers(t *testing.T) {
	cfg := config.DefaultConfig().Analysis.Breakers
	s := Snapshot{DailyLoss: 60_000_000, Concentration: 0.95, HouseEdge: -0.03, HasWagers: true}
	fired := CheckBreakers(s, cfg)
	if len(fired) != 3 {
		t.Fatalf("expected three breakers, got %+v", fired)
	}
	if fired[1].Name != "concentration" || fired[1].Critical {
		t.Fatalf("expected non-critical concentration breaker, got %+v", fired[1])
	}

	s.HasWagers = false
	s.DailyLoss = 0
	s.Concentration = 0.5
	if fired := CheckBreakers(s, cfg); len(fired) != 0 {
		t.Fatalf("expected no breakers without wagering data, got %+v", fired)
	}
}

type failingLedger struct{ *ledger.MemoryStore }

func (failingLedger) WagerTotals(ctx context.Context, exclusion ledger.Exclusion) (ledger.Totals, error) {
	return ledger.Totals{}, ledger.ErrUnavailable
}

func TestAnalyzerEntersAndRecovers(t *testing.T) {
	cfg := config.DefaultConfig().Analysis
	store := ledger.NewMemoryStore()
	store.SetBalance("whale", ledger.Balance{Wallet: 900_000_000, Bank: 100_000_000})
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		store.SetBalance(id, ledger.Balance{Wallet: 1000})
	}
	store.SetStats("a", ledger.Stats{TotalWagered: 1_000_000, TotalWon: 1_100_000})

	ctrl := controls.New(controls.Config{DefaultScore: cfg.DefaultScore}, nil, nil, zap.NewNop())
	analyzer := NewAnalyzer(cfg, store, ctrl, utils.NewRollingSum(24*time.Hour), zap.NewNop())
	ctx := context.Background()

	s, err := analyzer.PerformAnalysis(ctx)
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if s.Stability != 0 {
		t.Fatalf("expected collapsed stability, got %f", s.Stability)
	}
	if !ctrl.EmergencyActive() {
		t.Fatalf("expected emergency mode after critical breaker")
	}

	store.SetBalance("whale", ledger.Balance{Wallet: 1000})
	store.SetStats("a", ledger.Stats{TotalWagered: 1_000_000, TotalWon: 960_000})
	s, err = analyzer.PerformAnalysis(ctx)
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if s.Stability != 100 || ctrl.EmergencyActive() {
		t.Fatalf("expected recovery, got stability %f active %t", s.Stability, ctrl.EmergencyActive())
	}
	if last, ok := analyzer.Last(); !ok || last.Stability != 100 {
		t.Fatalf("expected last snapshot to be stored")
	}
}

func TestAnalyzerKeepsStateOnLedgerFailure(t *testing.T) {
	cfg := config.DefaultConfig().Analysis
	ctrl := controls.New(controls.Config{DefaultScore: cfg.DefaultScore}, nil, nil, zap.NewNop())
	analyzer := NewAnalyzer(cfg, failingLedger{ledger.NewMemoryStore()}, ctrl, nil, zap.NewNop())

	_, err := analyzer.PerformAnalysis(context.Background())
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if ctrl.HealthScore() != 75 || ctrl.EmergencyActive() {
		t.Fatalf("expected controls untouched, got %+v", ctrl.Snapshot())
	}
	if _, ok := analyzer.Last(); ok {
		t.Fatalf("expected no snapshot after failure")
	}
}

type chanTicker struct{ ch chan time.Time }

func (c chanTicker) C() <-chan time.Time { return c.ch }

func (chanTicker) Stop() {}

func TestRunAnalyzesOnTick(t *testing.T) {
	cfg := config.DefaultConfig().Analysis
	store := ledger.NewMemoryStore()
	store.SetBalance("a", ledger.Balance{Wallet: 1000})
	ctrl := controls.New(controls.Config{DefaultScore: cfg.DefaultScore}, nil, nil, zap.NewNop())
	analyzer := NewAnalyzer(cfg, store, ctrl, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	ticker := chanTicker{ch: make(chan time.Time)}
	done := make(chan struct{})
	go func() {
		analyzer.Run(ctx, ticker)
		close(done)
	}()
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	cancel()
	<-done

	if _, ok := analyzer.Last(); !ok {
		t.Fatalf("expected a snapshot after ticks")
	}
}
