package risk

import (
	"math/rand"
	"testing"
	"time"

	"economy-sentinel/internal/config"
)

type fixedEdges float64

func (f fixedEdges) HouseEdge(string) float64 { return float64(f) }

func profileWith(actions ...GameAction) Profile {
	p := Profile{UserID: "u1", Games: make(map[string]GameStats), Patterns: make(map[string][]string)}
	for _, action := range actions {
		p.Actions = append(p.Actions, action)
		stats := p.Games[action.GameType]
		if action.Result != "" {
			stats.TotalGames++
			if action.Result == ResultWin {
				stats.Wins++
			} else if action.Result == ResultLoss {
				stats.Losses++
			}
		}
		p.Games[action.GameType] = stats
	}
	return p
}

func streakProfile(wins int, base time.Time) Profile {
	var actions []GameAction
	for i := 0; i < 5; i++ {
		actions = append(actions, GameAction{Timestamp: base.Add(time.Duration(i) * time.Minute), GameType: "coinflip", Action: ActionResult, Result: ResultLoss})
	}
	for i := 0; i < wins; i++ {
		actions = append(actions, GameAction{Timestamp: base.Add(time.Duration(5+i) * time.Minute), GameType: "coinflip", Action: ActionResult, Result: ResultWin})
	}
	return profileWith(actions...)
}

func TestDetectSkipsShortHistory(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	base := time.Unix(1000, 0)
	p := streakProfile(0, base)
	p.Actions = p.Actions[:4]
	if findings := Detect(p, "coinflip", base, cfg, fixedEdges(0.03)); len(findings) != 0 {
		t.Fatalf("expected no findings below minimum history, got %+v", findings)
	}
}

func TestConsistentWinsMonotonic(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	base := time.Unix(1000, 0)

	previous := -1.0
	for wins := 0; wins <= 15; wins++ {
		score := ConsistentWins(streakProfile(wins, base), "coinflip", cfg)
		if score < previous {
			t.Fatalf("score decreased at streak %d: %f < %f", wins, score, previous)
		}
		previous = score
	}

	below := ConsistentWins(streakProfile(cfg.WinStreakThreshold, base), "coinflip", cfg)
	above := ConsistentWins(streakProfile(cfg.WinStreakThreshold+1, base), "coinflip", cfg)
	if !(above > below) {
		t.Fatalf("expected crossing the threshold to raise the score, got %f then %f", below, above)
	}
	if got := ConsistentWins(streakProfile(15, base), "coinflip", cfg); got != 60 {
		t.Fatalf("expected capped score 60, got %f", got)
	}
}

func TestUnusualBetSizingBounds(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	base := time.Unix(1000, 0)
	bets := func(amounts ...int64) Profile {
		actions := make([]GameAction, 0, len(amounts))
		for i, amount := range amounts {
			actions = append(actions, GameAction{Timestamp: base.Add(time.Duration(i) * time.Minute), GameType: "slots", Action: ActionBet, BetAmount: amount})
		}
		return profileWith(actions...)
	}

	if got := UnusualBetSizing(bets(5000, 5000, 5000, 5000, 5000, 5000), "slots", cfg); got != 25 {
		t.Fatalf("expected flat betting score 25, got %f", got)
	}
	if got := UnusualBetSizing(bets(1000, 7000, 2000, 9000, 3000, 4000), "slots", cfg); got != 15 {
		t.Fatalf("expected round amount score 15, got %f", got)
	}
	if got := UnusualBetSizing(bets(123, 4567, 89, 1011, 777, 31), "slots", cfg); got != 0 {
		t.Fatalf("expected varied bets to score 0, got %f", got)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(40)
		amounts := make([]int64, n)
		for j := range amounts {
			switch rng.Intn(3) {
			case 0:
				amounts[j] = int64(rng.Intn(10)) * 1000
			case 1:
				amounts[j] = 2500
			default:
				amounts[j] = rng.Int63n(1_000_000)
			}
		}
		got := UnusualBetSizing(bets(amounts...), "slots", cfg)
		if got < 0 || got > 25 {
			t.Fatalf("score %f out of range for %v", got, amounts)
		}
	}
}

func TestRapidBettingWindow(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	base := time.Unix(1000, 0)
	var actions []GameAction
	for i := 0; i < 12; i++ {
		actions = append(actions, GameAction{Timestamp: base.Add(time.Duration(i) * time.Second), GameType: "dice", Action: ActionBet, BetAmount: 10})
	}
	p := profileWith(actions...)

	now := base.Add(11 * time.Second)
	if got := RapidBetting(p, now, cfg); got != 50 {
		t.Fatalf("expected capped rapid betting score, got %f", got)
	}
	if got := RapidBetting(p, now.Add(2*time.Minute), cfg); got != 0 {
		t.Fatalf("expected window to have passed, got %f", got)
	}
}

func TestPerfectTimingNeedsSamples(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	base := time.Unix(1000, 0)
	build := func(n int) Profile {
		var actions []GameAction
		for i := 0; i < n; i++ {
			actions = append(actions, GameAction{Timestamp: base.Add(time.Duration(i) * 2 * time.Second), GameType: "dice", Action: ActionPlay})
		}
		return profileWith(actions...)
	}
	if got := PerfectTiming(build(20), cfg); got != 0 {
		t.Fatalf("expected 19 samples to be insufficient, got %f", got)
	}
	if got := PerfectTiming(build(21), cfg); got != 40 {
		t.Fatalf("expected machine-regular timing to score 40, got %f", got)
	}
}

func TestImpossibleWinRate(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	p := Profile{Games: map[string]GameStats{"roulette": {TotalGames: 20, Wins: 20}}}

	// Expected rate 0.7, observed 1.0.
	got := ImpossibleWinRate(p, "roulette", 0.30, cfg)
	if got < 59.9 || got > 60.1 {
		t.Fatalf("expected score near 60, got %f", got)
	}
	if got := ImpossibleWinRate(p, "roulette", 0.03, cfg); got != 0 {
		t.Fatalf("expected no score when within margin, got %f", got)
	}
	p.Games["roulette"] = GameStats{TotalGames: 19, Wins: 19}
	if got := ImpossibleWinRate(p, "roulette", 0.30, cfg); got != 0 {
		t.Fatalf("expected minimum game count to apply, got %f", got)
	}
}

func TestStatisticalAnomaly(t *testing.T) {
	cfg := config.DefaultConfig().Risk
	base := time.Unix(1000, 0)
	var actions []GameAction
	for i := 0; i < 50; i++ {
		multiplier := 1.5
		if i%10 == 0 {
			multiplier = 25
		}
		actions = append(actions, GameAction{Timestamp: base.Add(time.Duration(i) * time.Minute), GameType: "crash", Action: ActionResult, Result: ResultWin, Multiplier: multiplier})
	}
	if got := StatisticalAnomaly(profileWith(actions...), "crash", cfg); got != 50 {
		t.Fatalf("expected 5 outliers to score 50, got %f", got)
	}
	if got := StatisticalAnomaly(profileWith(actions...), "slots", cfg); got != 0 {
		t.Fatalf("expected other games to be ignored, got %f", got)
	}
}
