package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"economy-sentinel/internal/config"
	"economy-sentinel/internal/ledger"
	"economy-sentinel/internal/notify"
	"economy-sentinel/internal/storage"

	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

type reviewSink struct {
	mu    sync.Mutex
	flags []storage.ReviewFlag
}

func (r *reviewSink) AddReviewFlag(ctx context.Context, flag storage.ReviewFlag) (storage.ReviewFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, flag)
	return flag, nil
}

func (r *reviewSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags)
}

type testEngine struct {
	*Engine
	clock    *fakeClock
	reviews  *reviewSink
	recorder *notify.Recorder
}

func newTestEngine(t *testing.T, mutate func(*config.RiskConfig)) testEngine {
	t.Helper()
	cfg := config.DefaultConfig().Risk
	if mutate != nil {
		mutate(&cfg)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	reviews := &reviewSink{}
	recorder := &notify.Recorder{}
	dispatcher := notify.NewDispatcher(zap.NewNop(), false)
	dispatcher.SetSink(recorder)

	stats := ledger.NewMemoryStore()
	stats.SetStats("bot", ledger.Stats{Wins: 40, Losses: 2, TotalWagered: 100000, TotalWon: 400000, BiggestWin: 90000})

	engine := NewEngine(cfg, Deps{
		Edges:    fixedEdges(0.03),
		Reviews:  reviews,
		Stats:    stats,
		Notifier: dispatcher,
		Logger:   zap.NewNop(),
	})
	engine.WithClock(clock)
	return testEngine{Engine: engine, clock: clock, reviews: reviews, recorder: recorder}
}

func TestConsistentWinsCrossesMedium(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	var assessment Assessment
	for i := 0; i < 15; i++ {
		te.clock.Advance(2 * time.Minute)
		assessment = te.AnalyzeGameAction(ctx, "u1", "coinflip", ActionResult, ActionData{Result: ResultWin, Payout: 200, Multiplier: 2})
	}

	if assessment.RawScore != 60 {
		t.Fatalf("expected streak score 60, got %f (%v)", assessment.RawScore, assessment.Patterns)
	}
	if assessment.RiskScore < config.DefaultConfig().Risk.Levels.Medium {
		t.Fatalf("expected score to cross MEDIUM, got %f", assessment.RiskScore)
	}
	if assessment.Tier == TierNone {
		t.Fatalf("expected an action tier to fire")
	}
	if assessment.Action != DecisionRestrict {
		t.Fatalf("expected RESTRICT decision, got %s", assessment.Action)
	}
	limit, ok := te.ActiveLimit("u1")
	if !ok {
		t.Fatalf("expected reduced limit to be recorded")
	}
	if limit.MaxBet < 39999 || limit.MaxBet > 40001 {
		t.Fatalf("expected max bet near 40000, got %d", limit.MaxBet)
	}
	if !te.IsActionAllowed("u1", ActionBet, 1_000_000).Allowed {
		t.Fatalf("expected advisory limit not to deny")
	}
}

func TestIdenticalActionsConverge(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	var scores []float64
	for i := 0; i < 200; i++ {
		te.clock.Advance(time.Minute)
		a := te.AnalyzeGameAction(ctx, "u1", "slots", ActionBet, ActionData{BetAmount: 5000})
		scores = append(scores, a.RawScore)
	}
	settled := scores[120]
	for i := 120; i < len(scores); i++ {
		if scores[i] != settled {
			t.Fatalf("score drifted at action %d: %f vs %f", i, scores[i], settled)
		}
	}
	profile, ok := te.Profile("u1")
	if !ok || len(profile.Actions) != 100 {
		t.Fatalf("expected profile capped at 100 actions, got %d", len(profile.Actions))
	}
}

func TestBlockedUserDenied(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if !te.IsActionAllowed("u1", ActionBet, 100).Allowed {
		t.Fatalf("expected unknown user to be allowed")
	}
	te.Block(ctx, "u1", "manual", "op")
	perm := te.IsActionAllowed("u1", ActionBet, 1)
	if perm.Allowed || perm.Reason == "" {
		t.Fatalf("expected blocked user denied with reason, got %+v", perm)
	}
	if !te.Unblock(ctx, "u1", "op") {
		t.Fatalf("expected unblock to report a change")
	}
	if !te.IsActionAllowed("u1", ActionBet, 1).Allowed {
		t.Fatalf("expected unblocked user to be allowed")
	}
	if te.Unblock(ctx, "u1", "op") {
		t.Fatalf("expected second unblock to be a no-op")
	}
}

func rapidFlatBets(te testEngine, userID string, n int) Assessment {
	var a Assessment
	for i := 0; i < n; i++ {
		te.clock.Advance(time.Second)
		a = te.AnalyzeGameAction(context.Background(), userID, "slots", ActionBet, ActionData{BetAmount: 5000})
	}
	return a
}

func TestRestrictionAdvisoryByDefault(t *testing.T) {
	te := newTestEngine(t, nil)

	a := rapidFlatBets(te, "u1", 12)
	if a.Tier != TierTemporaryRestriction {
		t.Fatalf("expected temporary restriction, got %q (raw %f)", a.Tier, a.RawScore)
	}
	if len(a.Restrictions) != 1 || a.Restrictions[0].Type != RestrictionTemporaryBan {
		t.Fatalf("expected restriction in assessment, got %+v", a.Restrictions)
	}
	if !te.IsActionAllowed("u1", ActionBet, 5000).Allowed {
		t.Fatalf("expected advisory restriction not to deny")
	}

	te.clock.Advance(61 * time.Minute)
	if _, ok := te.ActiveRestriction("u1"); ok {
		t.Fatalf("expected restriction to expire after an hour")
	}
}

func TestRestrictionEnforcedWhenConfigured(t *testing.T) {
	te := newTestEngine(t, func(cfg *config.RiskConfig) { cfg.EnforceRestrictions = true })

	rapidFlatBets(te, "u1", 12)
	if te.IsActionAllowed("u1", ActionBet, 5000).Allowed {
		t.Fatalf("expected enforced restriction to deny")
	}
}

func TestSuspendBlocksAndNotifiesOnce(t *testing.T) {
	te := newTestEngine(t, nil)

	a := rapidFlatBets(te, "bot", 21)
	if a.RawScore < 90 {
		t.Fatalf("expected raw score above suspend threshold, got %f (%v)", a.RawScore, a.Patterns)
	}
	if a.RiskScore != 100 || a.Level != LevelCritical {
		t.Fatalf("expected clamped critical score, got %f %s", a.RiskScore, a.Level)
	}
	if !te.IsBlocked("bot") {
		t.Fatalf("expected user to be blocked")
	}
	if alert, ok := te.ActiveAlert("bot"); !ok || alert.Status != AlertHighRisk || !alert.RequiresManualReview {
		t.Fatalf("expected high risk alert, got %+v", alert)
	}

	rapidFlatBets(te, "bot", 3)
	messages := te.recorder.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected a single suspension notice, got %d", len(messages))
	}
	var sawStats bool
	for _, field := range messages[0].Fields {
		if field.Name == "Ledger stats" && field.Value != "unavailable" {
			sawStats = true
		}
	}
	if !sawStats {
		t.Fatalf("expected ledger stats in notification, got %+v", messages[0].Fields)
	}
	if te.reviews.count() != 1 {
		t.Fatalf("expected one review flag, got %d", te.reviews.count())
	}
	if stats := te.Stats(); stats.Blocked != 1 || stats.Tracked != 1 || stats.Flagged != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestResetKeepsBlock(t *testing.T) {
	te := newTestEngine(t, nil)

	rapidFlatBets(te, "bot", 21)
	if _, ok := te.ActiveRestriction("bot"); !ok {
		t.Fatalf("expected restriction before reset")
	}
	te.Reset("bot")

	if _, ok := te.Profile("bot"); ok {
		t.Fatalf("expected profile cleared")
	}
	if _, ok := te.ActiveRestriction("bot"); ok {
		t.Fatalf("expected restriction cleared")
	}
	if te.RiskScore("bot") != 0 {
		t.Fatalf("expected zero score after reset, got %f", te.RiskScore("bot"))
	}
	if stats := te.Stats(); stats.Flagged != 0 || stats.Blocked != 1 {
		t.Fatalf("expected flag cleared and block kept, got %+v", stats)
	}
}

func TestProfilesExpire(t *testing.T) {
	te := newTestEngine(t, nil)
	te.AnalyzeGameAction(context.Background(), "u1", "dice", ActionPlay, ActionData{BetAmount: 10})

	te.clock.Advance(29 * time.Minute)
	if _, ok := te.Profile("u1"); !ok {
		t.Fatalf("expected profile within TTL")
	}
	te.clock.Advance(2 * time.Minute)
	if removed := te.Sweep(); removed != 1 {
		t.Fatalf("expected one expired profile swept, got %d", removed)
	}
	if te.Stats().Tracked != 0 {
		t.Fatalf("expected no tracked users after expiry")
	}
}
