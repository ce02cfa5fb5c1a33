package config

import (
	"errors"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken         string                 `yaml:"discord_token"`
	BotEnabled           bool                   `yaml:"bot_enabled"`
	DatabasePath         string                 `yaml:"database_path"`
	LedgerDSN            string                 `yaml:"ledger_dsn"`
	LedgerTimeoutSeconds int                    `yaml:"ledger_timeout_seconds"`
	LogLevel             string                 `yaml:"log_level"`
	NotificationChannel  string                 `yaml:"notification_channel"`
	RetentionDays        int                    `yaml:"retention_days"`
	Health               HealthConfig           `yaml:"health"`
	Risk                 RiskConfig             `yaml:"risk"`
	Analysis             AnalysisConfig         `yaml:"analysis"`
	Limits               LimitConfig            `yaml:"limits"`
	Payout               PayoutConfig           `yaml:"payout"`
	Games                map[string]GameControl `yaml:"games"`
	Notifications        NotifyConfig           `yaml:"notifications"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type RiskConfig struct {
	ProfileTTLMinutes     int         `yaml:"profile_ttl_minutes"`
	MaxActions            int         `yaml:"max_actions"`
	MinActions            int         `yaml:"min_actions"`
	RapidBetCount         int         `yaml:"rapid_bet_count"`
	RapidBetWindowSeconds int         `yaml:"rapid_bet_window_seconds"`
	WinStreakThreshold    int         `yaml:"win_streak_threshold"`
	WinStreakWindow       int         `yaml:"win_streak_window"`
	BetSizingWindow       int         `yaml:"bet_sizing_window"`
	TimingMaxGapSeconds   int         `yaml:"timing_max_gap_seconds"`
	TimingMinSamples      int         `yaml:"timing_min_samples"`
	TimingMaxVariance     float64     `yaml:"timing_max_variance"`
	WinRateMinGames       int         `yaml:"win_rate_min_games"`
	WinRateMargin         float64     `yaml:"win_rate_margin"`
	AnomalyWindow         int         `yaml:"anomaly_window"`
	AnomalyMultiplier     float64     `yaml:"anomaly_multiplier"`
	AnomalyBaselineRate   float64     `yaml:"anomaly_baseline_rate"`
	Levels                RiskLevels  `yaml:"levels"`
	Tiers                 ActionTiers `yaml:"tiers"`
	BaseLimit             int64       `yaml:"base_limit"`
	LimitTTLHours         int         `yaml:"limit_ttl_hours"`
	RestrictionMinutes    int         `yaml:"restriction_minutes"`
	AlertTTLHours         int         `yaml:"alert_ttl_hours"`
	SweepIntervalMinutes  int         `yaml:"sweep_interval_minutes"`
	EnforceRestrictions   bool        `yaml:"enforce_restrictions"`
	RecentHistoryInAlert  int         `yaml:"recent_history_in_alert"`
}

type RiskLevels struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

type ActionTiers struct {
	FlagForReview        float64 `yaml:"flag_for_review"`
	ReduceLimits         float64 `yaml:"reduce_limits"`
	TemporaryRestriction float64 `yaml:"temporary_restriction"`
	SuspendNotify        float64 `yaml:"suspend_notify"`
}

type AnalysisConfig struct {
	Enabled                  bool            `yaml:"enabled"`
	IntervalMinutes          int             `yaml:"interval_minutes"`
	DefaultScore             float64         `yaml:"default_score"`
	TopShare                 float64         `yaml:"top_share"`
	EmergencyScoreCeiling    float64         `yaml:"emergency_score_ceiling"`
	SafetyOverrideScore      float64         `yaml:"safety_override_score"`
	EmergencyDurationMinutes int             `yaml:"emergency_duration_minutes"`
	DailyLossWindowHours     int             `yaml:"daily_loss_window_hours"`
	Rubric                   StabilityRubric `yaml:"rubric"`
	Breakers                 BreakerConfig   `yaml:"breakers"`
	Exclusions               ExclusionConfig `yaml:"exclusions"`
}

// PenaltyTier subtracts Points when a metric crosses Threshold.
type PenaltyTier struct {
	Threshold float64 `yaml:"threshold"`
	Points    float64 `yaml:"points"`
}

type StabilityRubric struct {
	Gini                 []PenaltyTier `yaml:"gini"`
	Concentration        []PenaltyTier `yaml:"concentration"`
	HouseEdge            []PenaltyTier `yaml:"house_edge"`
	HealthyEdgeMin       float64       `yaml:"healthy_edge_min"`
	HealthyEdgeMax       float64       `yaml:"healthy_edge_max"`
	HealthyEdgeBonus     float64       `yaml:"healthy_edge_bonus"`
	GoodEdgeMax          float64       `yaml:"good_edge_max"`
	GoodEdgeBonus        float64       `yaml:"good_edge_bonus"`
	ExcessiveEdge        float64       `yaml:"excessive_edge"`
	ExcessiveEdgePenalty float64       `yaml:"excessive_edge_penalty"`
	ExtremeGini          float64       `yaml:"extreme_gini"`
	ExtremeConcentration float64       `yaml:"extreme_concentration"`
	ExtremeHouseEdge     float64       `yaml:"extreme_house_edge"`
}

type BreakerConfig struct {
	DailyLossCap          int64   `yaml:"daily_loss_cap"`
	DailyLossCritical     bool    `yaml:"daily_loss_critical"`
	ConcentrationCap      float64 `yaml:"concentration_cap"`
	ConcentrationCritical bool    `yaml:"concentration_critical"`
	HouseEdgeFloor        float64 `yaml:"house_edge_floor"`
	HouseEdgeCritical     bool    `yaml:"house_edge_critical"`
}

type ExclusionConfig struct {
	UserIDs       []string `yaml:"user_ids"`
	WealthCeiling int64    `yaml:"wealth_ceiling"`
}

type LimitConfig struct {
	MaxBetWealthRatio  float64      `yaml:"max_bet_wealth_ratio"`
	DefaultMaxBet      int64        `yaml:"default_max_bet"`
	EmergencyMaxBet    int64        `yaml:"emergency_max_bet"`
	MaxReduction       float64      `yaml:"max_reduction"`
	EmergencyReduction float64      `yaml:"emergency_reduction"`
	HighRiskReduction  float64      `yaml:"high_risk_reduction"`
	HighRiskScore      float64      `yaml:"high_risk_score"`
	ReviewMultiplier   float64      `yaml:"review_multiplier"`
	WealthTiers        []WealthTier `yaml:"wealth_tiers"`
}

type WealthTier struct {
	MinWealth int64   `yaml:"min_wealth"`
	Reduction float64 `yaml:"reduction"`
}

type GameControl struct {
	MaxBet              int64   `yaml:"max_bet"`
	HouseEdgeAdjustment float64 `yaml:"house_edge_adjustment"`
	MultiplierReduction float64 `yaml:"multiplier_reduction"`
}

type PayoutConfig struct {
	DefaultHouseEdge float64            `yaml:"default_house_edge"`
	HouseEdges       map[string]float64 `yaml:"house_edges"`
	LotteryGames     []string           `yaml:"lottery_games"`
	MinPayoutRatio   float64            `yaml:"min_payout_ratio"`
}

type NotifyConfig struct {
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"` // red
	Error   int `yaml:"error"`   // orange
}

func DefaultConfig() Config {
	return Config{
		BotEnabled:           true,
		DatabasePath:         "/data/economy.db",
		LedgerTimeoutSeconds: 3,
		LogLevel:             "info",
		RetentionDays:        30,
		Health:               HealthConfig{Enabled: false, Addr: ":8080"},
		Risk: RiskConfig{
			ProfileTTLMinutes:     30,
			MaxActions:            100,
			MinActions:            5,
			RapidBetCount:         10,
			RapidBetWindowSeconds: 60,
			WinStreakThreshold:    8,
			WinStreakWindow:       20,
			BetSizingWindow:       20,
			TimingMaxGapSeconds:   30,
			TimingMinSamples:      20,
			TimingMaxVariance:     1000,
			WinRateMinGames:       20,
			WinRateMargin:         0.15,
			AnomalyWindow:         50,
			AnomalyMultiplier:     10,
			AnomalyBaselineRate:   0.01,
			Levels:                RiskLevels{Low: 20, Medium: 40, High: 60, Critical: 80},
			Tiers:                 ActionTiers{FlagForReview: 30, ReduceLimits: 50, TemporaryRestriction: 70, SuspendNotify: 90},
			BaseLimit:             100000,
			LimitTTLHours:         24,
			RestrictionMinutes:    60,
			AlertTTLHours:         24,
			SweepIntervalMinutes:  5,
			EnforceRestrictions:   false,
			RecentHistoryInAlert:  10,
		},
		Analysis: AnalysisConfig{
			Enabled:                  true,
			IntervalMinutes:          15,
			DefaultScore:             75,
			TopShare:                 0.01,
			EmergencyScoreCeiling:    50,
			SafetyOverrideScore:      80,
			EmergencyDurationMinutes: 60,
			DailyLossWindowHours:     24,
			Rubric:                   DefaultRubric(),
			Breakers: BreakerConfig{
				DailyLossCap:          50_000_000,
				DailyLossCritical:     true,
				ConcentrationCap:      0.90,
				ConcentrationCritical: false,
				HouseEdgeFloor:        -0.02,
				HouseEdgeCritical:     true,
			},
			Exclusions: ExclusionConfig{WealthCeiling: 10_000_000_000},
		},
		Limits: LimitConfig{
			MaxBetWealthRatio:  0.05,
			DefaultMaxBet:      100000,
			EmergencyMaxBet:    50000,
			MaxReduction:       0.80,
			EmergencyReduction: 0.15,
			HighRiskReduction:  0.10,
			HighRiskScore:      60,
			ReviewMultiplier:   100,
			WealthTiers: []WealthTier{
				{MinWealth: 50_000_000, Reduction: 0.05},
				{MinWealth: 100_000_000, Reduction: 0.10},
				{MinWealth: 500_000_000, Reduction: 0.20},
				{MinWealth: 1_000_000_000, Reduction: 0.30},
			},
		},
		Payout: PayoutConfig{
			DefaultHouseEdge: 0.03,
			HouseEdges: map[string]float64{
				"blackjack": 0.005,
				"poker":     0.01,
				"coinflip":  0.02,
				"dice":      0.02,
				"roulette":  0.027,
				"crash":     0.03,
				"mines":     0.03,
				"plinko":    0.04,
				"slots":     0.05,
				"wheel":     0.06,
				"lottery":   0.25,
				"scratch":   0.30,
				"keno":      0.35,
			},
			LotteryGames:   []string{"lottery", "scratch", "keno"},
			MinPayoutRatio: 0.80,
		},
		Games: map[string]GameControl{
			"blackjack": {MaxBet: 15_000_000},
			"poker":     {MaxBet: 10_000_000},
			"coinflip":  {MaxBet: 5_000_000},
			"dice":      {MaxBet: 5_000_000},
			"roulette":  {MaxBet: 5_000_000},
			"crash":     {MaxBet: 2_000_000, MultiplierReduction: 0.05},
			"mines":     {MaxBet: 2_000_000, MultiplierReduction: 0.05},
			"plinko":    {MaxBet: 1_000_000, MultiplierReduction: 0.05},
			"slots":     {MaxBet: 1_000_000, MultiplierReduction: 0.10},
			"wheel":     {MaxBet: 1_000_000, MultiplierReduction: 0.10},
			"lottery":   {MaxBet: 100000},
			"scratch":   {MaxBet: 100000},
			"keno":      {MaxBet: 100000},
		},
		Notifications: NotifyConfig{
			EmbedColors: EmbedColors{
				Action:  0xF59E0B,
				Warning: 0xEF4444,
				Error:   0xF97316,
			},
		},
	}
}

func DefaultRubric() StabilityRubric {
	return StabilityRubric{
		Gini: []PenaltyTier{
			{Threshold: 0.9, Points: 40},
			{Threshold: 0.8, Points: 30},
			{Threshold: 0.7, Points: 20},
			{Threshold: 0.6, Points: 15},
			{Threshold: 0.5, Points: 10},
			{Threshold: 0.4, Points: 5},
		},
		Concentration: []PenaltyTier{
			{Threshold: 0.95, Points: 35},
			{Threshold: 0.90, Points: 25},
			{Threshold: 0.85, Points: 20},
			{Threshold: 0.75, Points: 15},
			{Threshold: 0.65, Points: 10},
			{Threshold: 0.55, Points: 5},
		},
		HouseEdge: []PenaltyTier{
			{Threshold: -0.05, Points: 40},
			{Threshold: -0.02, Points: 30},
			{Threshold: 0.005, Points: 20},
			{Threshold: 0.01, Points: 10},
		},
		HealthyEdgeMin:       0.03,
		HealthyEdgeMax:       0.06,
		HealthyEdgeBonus:     15,
		GoodEdgeMax:          0.08,
		GoodEdgeBonus:        10,
		ExcessiveEdge:        0.10,
		ExcessiveEdgePenalty: 15,
		ExtremeGini:          0.9,
		ExtremeConcentration: 0.95,
		ExtremeHouseEdge:     -0.05,
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.BotEnabled && cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	Normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.BotEnabled = envBool("BOT_ENABLED", cfg.BotEnabled)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LedgerDSN = envString("LEDGER_DSN", cfg.LedgerDSN)
	cfg.LedgerTimeoutSeconds = envInt("LEDGER_TIMEOUT_SECONDS", cfg.LedgerTimeoutSeconds)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.NotificationChannel = envString("NOTIFICATION_CHANNEL", cfg.NotificationChannel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Risk.EnforceRestrictions = envBool("ENFORCE_RESTRICTIONS", cfg.Risk.EnforceRestrictions)
	cfg.Risk.RapidBetCount = envInt("RAPID_BET_COUNT", cfg.Risk.RapidBetCount)
	cfg.Risk.WinStreakThreshold = envInt("WIN_STREAK_THRESHOLD", cfg.Risk.WinStreakThreshold)
	cfg.Analysis.Enabled = envBool("ANALYSIS_ENABLED", cfg.Analysis.Enabled)
	cfg.Analysis.IntervalMinutes = envInt("ANALYSIS_INTERVAL_MINUTES", cfg.Analysis.IntervalMinutes)
	cfg.Analysis.EmergencyDurationMinutes = envInt("EMERGENCY_DURATION_MINUTES", cfg.Analysis.EmergencyDurationMinutes)
	cfg.Analysis.Breakers.DailyLossCap = envInt64("DAILY_LOSS_CAP", cfg.Analysis.Breakers.DailyLossCap)
	cfg.Limits.DefaultMaxBet = envInt64("DEFAULT_MAX_BET", cfg.Limits.DefaultMaxBet)
	cfg.Limits.EmergencyMaxBet = envInt64("EMERGENCY_MAX_BET", cfg.Limits.EmergencyMaxBet)
	cfg.Limits.MaxBetWealthRatio = envFloat("MAX_BET_WEALTH_RATIO", cfg.Limits.MaxBetWealthRatio)
	if ids := envString("EXCLUDED_USER_IDS", ""); ids != "" {
		cfg.Analysis.Exclusions.UserIDs = splitList(ids)
	}
	cfg.Notifications.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.Notifications.EmbedColors.Action)
	cfg.Notifications.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Notifications.EmbedColors.Warning)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

// Normalize fills zero values with defaults and orders threshold lists so
// the first matching tier is always the most severe one.
func Normalize(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaults.RetentionDays
	}
	if cfg.LedgerTimeoutSeconds <= 0 {
		cfg.LedgerTimeoutSeconds = defaults.LedgerTimeoutSeconds
	}
	if cfg.Risk.MaxActions <= 0 {
		cfg.Risk.MaxActions = defaults.Risk.MaxActions
	}
	if cfg.Risk.ProfileTTLMinutes <= 0 {
		cfg.Risk.ProfileTTLMinutes = defaults.Risk.ProfileTTLMinutes
	}
	if cfg.Risk.SweepIntervalMinutes <= 0 {
		cfg.Risk.SweepIntervalMinutes = defaults.Risk.SweepIntervalMinutes
	}
	if cfg.Analysis.DailyLossWindowHours <= 0 {
		cfg.Analysis.DailyLossWindowHours = defaults.Analysis.DailyLossWindowHours
	}
	if cfg.Analysis.IntervalMinutes <= 0 {
		cfg.Analysis.IntervalMinutes = defaults.Analysis.IntervalMinutes
	}
	if cfg.Analysis.DefaultScore <= 0 {
		cfg.Analysis.DefaultScore = defaults.Analysis.DefaultScore
	}
	if cfg.Analysis.TopShare <= 0 || cfg.Analysis.TopShare > 1 {
		cfg.Analysis.TopShare = defaults.Analysis.TopShare
	}
	if cfg.Limits.MaxReduction <= 0 || cfg.Limits.MaxReduction > 1 {
		cfg.Limits.MaxReduction = defaults.Limits.MaxReduction
	}
	if cfg.Payout.DefaultHouseEdge <= 0 {
		cfg.Payout.DefaultHouseEdge = defaults.Payout.DefaultHouseEdge
	}
	if cfg.Games == nil {
		cfg.Games = make(map[string]GameControl)
	}

	sort.Slice(cfg.Limits.WealthTiers, func(i, j int) bool {
		return cfg.Limits.WealthTiers[i].MinWealth < cfg.Limits.WealthTiers[j].MinWealth
	})
	sortDescending(cfg.Analysis.Rubric.Gini)
	sortDescending(cfg.Analysis.Rubric.Concentration)
	sort.Slice(cfg.Analysis.Rubric.HouseEdge, func(i, j int) bool {
		return cfg.Analysis.Rubric.HouseEdge[i].Threshold < cfg.Analysis.Rubric.HouseEdge[j].Threshold
	})
}

func sortDescending(tiers []PenaltyTier) {
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold > tiers[j].Threshold
	})
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
