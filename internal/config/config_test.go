package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
discord_token: file-token
limits:
  emergency_max_bet: 10000
  wealth_tiers:
    - min_wealth: 1000000000
      reduction: 0.3
    - min_wealth: 50000000
      reduction: 0.05
games:
  coinflip:
    max_bet: 250000
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ENFORCE_RESTRICTIONS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "file-token" {
		t.Fatalf("expected token from file, got %q", cfg.DiscordToken)
	}
	if cfg.Limits.EmergencyMaxBet != 10000 {
		t.Fatalf("expected emergency cap 10000, got %d", cfg.Limits.EmergencyMaxBet)
	}
	if !cfg.Risk.EnforceRestrictions {
		t.Fatalf("expected env override to enable enforcement")
	}
	if cfg.Limits.WealthTiers[0].MinWealth != 50000000 {
		t.Fatalf("expected wealth tiers sorted ascending, got %+v", cfg.Limits.WealthTiers)
	}
	if cfg.Games["coinflip"].MaxBet != 250000 {
		t.Fatalf("expected coinflip override, got %d", cfg.Games["coinflip"].MaxBet)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing token error")
	}

	t.Setenv("BOT_ENABLED", "false")
	if _, err := Load(); err != nil {
		t.Fatalf("expected headless config to load, got %v", err)
	}
}

func TestNormalizeOrdersRubric(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Rubric.Gini = []PenaltyTier{{Threshold: 0.4, Points: 5}, {Threshold: 0.9, Points: 40}}
	cfg.Analysis.Rubric.HouseEdge = []PenaltyTier{{Threshold: 0.01, Points: 10}, {Threshold: -0.05, Points: 40}}
	cfg.Analysis.DefaultScore = 0
	cfg.RetentionDays = 0

	Normalize(&cfg)
	if cfg.Analysis.Rubric.Gini[0].Threshold != 0.9 {
		t.Fatalf("expected gini tiers descending, got %+v", cfg.Analysis.Rubric.Gini)
	}
	if cfg.Analysis.Rubric.HouseEdge[0].Threshold != -0.05 {
		t.Fatalf("expected house edge tiers ascending, got %+v", cfg.Analysis.Rubric.HouseEdge)
	}
	if cfg.Analysis.DefaultScore != 75 {
		t.Fatalf("expected neutral default score 75, got %f", cfg.Analysis.DefaultScore)
	}
	if cfg.RetentionDays != 30 {
		t.Fatalf("expected default retention 30 days, got %d", cfg.RetentionDays)
	}
}
