// Package economy is the façade game commands call before and after
// touching balances. It decides amounts; it never writes them.
package economy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"economy-sentinel/internal/config"
	"economy-sentinel/internal/controls"
	"economy-sentinel/internal/ledger"
	"economy-sentinel/internal/metrics"
	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/payout"
	"economy-sentinel/internal/risk"
	"economy-sentinel/internal/storage"
	"economy-sentinel/internal/utils"

	"go.uber.org/zap"
)

type BetDecision struct {
	Approved       bool
	Reason         string
	MaxAllowed     int64
	AdjustedAmount int64
}

type PayoutDecision struct {
	Approved         bool
	OriginalPayout   int64
	AdjustedPayout   int64
	ReductionApplied float64
	Reason           string
}

// GameData describes a settled round. A zero Multiplier is derived from the
// payout and bet.
type GameData struct {
	Multiplier float64
	Result     string
}

type SystemStatus struct {
	EmergencyMode   bool
	EmergencyReason string
	EmergencySince  time.Time
	ManualOverride  bool
	HealthScore     float64
	TrackedUsers    int
	BlockedUsers    int
	FlaggedUsers    int
}

// GameControlUpdate is a partial update; nil fields are left unchanged.
type GameControlUpdate struct {
	MaxBet              *int64
	HouseEdgeAdjustment *float64
	MultiplierReduction *float64
}

type GameControlStore interface {
	UpsertGameControl(ctx context.Context, control storage.GameControl) error
	ListGameControls(ctx context.Context) ([]storage.GameControl, error)
}

// ResultRecorder settles a finished game into a ledger that tracks results
// in process.
type ResultRecorder interface {
	ApplyResult(userID string, bet, payout int64)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Deps struct {
	Risk     *risk.Engine
	Controls *controls.Controls
	Payouts  *payout.Table
	Ledger   ledger.Ledger
	Games    GameControlStore
	Reviews  risk.ReviewRecorder
	Audit    *audit.Logger
	Losses   *utils.RollingSum
	Results  ResultRecorder
	Logger   *zap.Logger
}

type Manager struct {
	limits config.LimitConfig
	deps   Deps
	logger *zap.Logger
	clock  Clock

	writeMu sync.Mutex
	games   atomic.Pointer[map[string]config.GameControl]
}

func NewManager(limits config.LimitConfig, games map[string]config.GameControl, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		limits: limits,
		deps:   deps,
		logger: logger,
		clock:  realClock{},
	}
	table := make(map[string]config.GameControl, len(games))
	for game, control := range games {
		table[normalize(game)] = control
	}
	m.games.Store(&table)
	return m
}

// WithClock is for setup only; the clock is read without locking.
func (m *Manager) WithClock(clock Clock) {
	m.clock = clock
}

// RecordAction feeds a game action to the risk engine.
func (m *Manager) RecordAction(ctx context.Context, userID, gameType, action string, data risk.ActionData) risk.Assessment {
	return m.deps.Risk.AnalyzeGameAction(ctx, userID, normalize(gameType), action, data)
}

func (m *Manager) IsActionAllowed(userID, action string, amount int64) risk.Permission {
	return m.deps.Risk.IsActionAllowed(userID, action, amount)
}

// ValidateAndProcessBet runs the bet checks in order: block, wealth ratio,
// game limit, emergency cap. The first failure wins.
func (m *Manager) ValidateAndProcessBet(ctx context.Context, userID, gameType string, betAmount, userWealth int64) BetDecision {
	decision := m.validateBet(userID, normalize(gameType), betAmount, userWealth)
	outcome := "approved"
	if !decision.Approved {
		outcome = "denied"
		m.logger.Info("bet denied",
			zap.String("user_id", userID),
			zap.String("game", gameType),
			zap.Int64("amount", betAmount),
			zap.String("reason", decision.Reason),
		)
	}
	metrics.BetDecisions.WithLabelValues(outcome).Inc()
	return decision
}

func (m *Manager) validateBet(userID, gameType string, betAmount, userWealth int64) BetDecision {
	if perm := m.deps.Risk.IsActionAllowed(userID, risk.ActionBet, betAmount); !perm.Allowed {
		return BetDecision{Approved: false, Reason: perm.Reason}
	}

	wealthCap := int64(math.Floor(float64(userWealth) * m.limits.MaxBetWealthRatio))
	if wealthCap < 0 {
		wealthCap = 0
	}
	gameCap := m.GameControl(gameType).MaxBet
	emergency := m.deps.Controls.EmergencyActive()

	maxAllowed := min(wealthCap, gameCap)
	if emergency {
		maxAllowed = min(maxAllowed, m.limits.EmergencyMaxBet)
	}

	if betAmount <= 0 {
		return BetDecision{Approved: false, Reason: "bet must be a positive amount", MaxAllowed: maxAllowed}
	}
	if betAmount > wealthCap {
		return BetDecision{
			Approved:   false,
			Reason:     fmt.Sprintf("bet exceeds %.0f%% of your total wealth", m.limits.MaxBetWealthRatio*100),
			MaxAllowed: maxAllowed,
		}
	}
	if betAmount > gameCap {
		return BetDecision{
			Approved:   false,
			Reason:     fmt.Sprintf("bet exceeds the %s game limit of %d", gameType, gameCap),
			MaxAllowed: maxAllowed,
		}
	}
	if emergency && betAmount > m.limits.EmergencyMaxBet {
		return BetDecision{
			Approved:   false,
			Reason:     fmt.Sprintf("emergency mode limits bets to %d", m.limits.EmergencyMaxBet),
			MaxAllowed: maxAllowed,
		}
	}
	return BetDecision{Approved: true, AdjustedAmount: betAmount}
}

// ValidateBetForUser looks up the user's wealth in the ledger. If the
// ledger cannot answer the bet is approved.
func (m *Manager) ValidateBetForUser(ctx context.Context, userID, gameType string, betAmount int64) BetDecision {
	if perm := m.deps.Risk.IsActionAllowed(userID, risk.ActionBet, betAmount); !perm.Allowed {
		metrics.BetDecisions.WithLabelValues("denied").Inc()
		return BetDecision{Approved: false, Reason: perm.Reason}
	}
	balance, err := m.deps.Ledger.GetUserBalance(ctx, userID)
	if err != nil {
		m.logger.Warn("ledger lookup failed, approving bet", zap.String("user_id", userID), zap.Error(err))
		metrics.BetDecisions.WithLabelValues("fail_open").Inc()
		return BetDecision{Approved: true, AdjustedAmount: betAmount}
	}
	return m.ValidateAndProcessBet(ctx, userID, gameType, betAmount, balance.Total())
}

// ValidateAndProcessPayout reduces winnings according to game, wealth,
// emergency and risk. A reduced payout never drops below the stake.
func (m *Manager) ValidateAndProcessPayout(ctx context.Context, userID, gameType string, betAmount, payoutAmount int64, data GameData) PayoutDecision {
	gameType = normalize(gameType)
	multiplier := data.Multiplier
	if multiplier == 0 && betAmount > 0 {
		multiplier = float64(payoutAmount) / float64(betAmount)
	}

	if m.limits.ReviewMultiplier > 0 && multiplier > m.limits.ReviewMultiplier {
		m.flagPayout(ctx, userID, gameType, multiplier, payoutAmount)
	}

	decision := PayoutDecision{
		Approved:       true,
		OriginalPayout: payoutAmount,
		AdjustedPayout: payoutAmount,
	}
	if payoutAmount > betAmount {
		reduction := m.reductionFor(ctx, userID, gameType)
		if reduction > 0 {
			reduced := int64(math.Round(float64(payoutAmount) * (1 - reduction)))
			decision.AdjustedPayout = max(betAmount, reduced)
			decision.ReductionApplied = reduction
			decision.Reason = fmt.Sprintf("payout reduced by %.0f%%", reduction*100)
			metrics.PayoutReductions.Inc()
		}
	}

	result := data.Result
	if result == "" {
		switch {
		case decision.AdjustedPayout > betAmount:
			result = risk.ResultWin
		case decision.AdjustedPayout < betAmount:
			result = risk.ResultLoss
		default:
			result = risk.ResultPush
		}
	}
	m.deps.Risk.AnalyzeGameAction(ctx, userID, gameType, risk.ActionResult, risk.ActionData{
		Payout:     decision.AdjustedPayout,
		Multiplier: multiplier,
		Result:     result,
	})
	if m.deps.Losses != nil {
		m.deps.Losses.Add(m.clock.Now(), float64(decision.AdjustedPayout-betAmount))
	}
	if m.deps.Results != nil {
		m.deps.Results.ApplyResult(userID, betAmount, decision.AdjustedPayout)
	}
	return decision
}

func (m *Manager) reductionFor(ctx context.Context, userID, gameType string) float64 {
	reduction := m.GameControl(gameType).MultiplierReduction
	reduction += m.wealthReduction(ctx, userID)
	if m.deps.Controls.EmergencyActive() {
		reduction += m.limits.EmergencyReduction
	}
	if m.deps.Risk.RiskScore(userID) >= m.limits.HighRiskScore {
		reduction += m.limits.HighRiskReduction
	}
	return math.Max(0, math.Min(m.limits.MaxReduction, reduction))
}

func (m *Manager) wealthReduction(ctx context.Context, userID string) float64 {
	if m.deps.Ledger == nil || len(m.limits.WealthTiers) == 0 {
		return 0
	}
	balance, err := m.deps.Ledger.GetUserBalance(ctx, userID)
	if err != nil {
		m.logger.Warn("ledger lookup failed, skipping wealth tier", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return WealthTierReduction(m.limits.WealthTiers, balance.Total())
}

// WealthTierReduction returns the reduction of the highest tier wealth
// reaches. Tiers must be sorted by ascending MinWealth.
func WealthTierReduction(tiers []config.WealthTier, wealth int64) float64 {
	idx := sort.Search(len(tiers), func(i int) bool { return tiers[i].MinWealth > wealth })
	if idx == 0 {
		return 0
	}
	return tiers[idx-1].Reduction
}

func (m *Manager) flagPayout(ctx context.Context, userID, gameType string, multiplier float64, payoutAmount int64) {
	reason := fmt.Sprintf("payout of %d at %.1fx multiplier", payoutAmount, multiplier)
	if m.deps.Reviews != nil {
		_, err := m.deps.Reviews.AddReviewFlag(ctx, storage.ReviewFlag{
			UserID:    userID,
			GameType:  gameType,
			Reason:    reason,
			RiskScore: m.deps.Risk.RiskScore(userID),
			CreatedAt: m.clock.Now(),
		})
		if err != nil {
			m.logger.Warn("review flag write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if m.deps.Audit != nil {
		m.deps.Audit.Record(ctx, audit.Entry{Level: audit.LevelWarn, UserID: userID, GameType: gameType, Event: "payout_review", Details: reason})
	}
}

// FairPayout applies the game's house edge plus its configured adjustment.
func (m *Manager) FairPayout(gameType string, betAmount int64, baseMultiplier float64) int64 {
	control := m.GameControl(gameType)
	return m.deps.Payouts.CalculateWithAdjustment(gameType, betAmount, baseMultiplier, control.HouseEdgeAdjustment)
}

// RTP is the game's return to player with its configured adjustment.
func (m *Manager) RTP(gameType string) float64 {
	return m.deps.Payouts.RTP(gameType, m.GameControl(gameType).HouseEdgeAdjustment)
}

func (m *Manager) SystemStatus() SystemStatus {
	state := m.deps.Controls.Snapshot()
	stats := m.deps.Risk.Stats()
	return SystemStatus{
		EmergencyMode:   state.EmergencyActive,
		EmergencyReason: state.Reason,
		EmergencySince:  state.Since,
		ManualOverride:  state.Manual,
		HealthScore:     state.HealthScore,
		TrackedUsers:    stats.Tracked,
		BlockedUsers:    stats.Blocked,
		FlaggedUsers:    stats.Flagged,
	}
}

// SetEmergencyMode is the operator override. It reports whether the state changed.
func (m *Manager) SetEmergencyMode(ctx context.Context, active bool, reason string) bool {
	return m.deps.Controls.SetEmergency(ctx, active, reason)
}

// GameControl returns the controls for gameType, falling back to defaults
// for unknown games.
func (m *Manager) GameControl(gameType string) config.GameControl {
	control := (*m.games.Load())[normalize(gameType)]
	if control.MaxBet <= 0 {
		control.MaxBet = m.limits.DefaultMaxBet
	}
	return control
}

// GameControls returns every game with configured or persisted controls.
func (m *Manager) GameControls() map[string]config.GameControl {
	current := *m.games.Load()
	out := make(map[string]config.GameControl, len(current))
	for game, control := range current {
		out[game] = control
	}
	return out
}

// UpdateGameControls merges update into the game's controls and persists
// the result.
func (m *Manager) UpdateGameControls(ctx context.Context, gameType string, update GameControlUpdate, by string) (config.GameControl, error) {
	gameType = normalize(gameType)
	if gameType == "" {
		return config.GameControl{}, errors.New("game type is required")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.GameControl(gameType)
	if update.MaxBet != nil {
		if *update.MaxBet <= 0 {
			return config.GameControl{}, errors.New("max bet must be positive")
		}
		next.MaxBet = *update.MaxBet
	}
	if update.HouseEdgeAdjustment != nil {
		if math.Abs(*update.HouseEdgeAdjustment) >= 1 {
			return config.GameControl{}, fmt.Errorf("house edge adjustment must be within (-1, 1)")
		}
		next.HouseEdgeAdjustment = *update.HouseEdgeAdjustment
	}
	if update.MultiplierReduction != nil {
		if *update.MultiplierReduction < 0 || *update.MultiplierReduction > m.limits.MaxReduction {
			return config.GameControl{}, fmt.Errorf("multiplier reduction must be within [0, %.2f]", m.limits.MaxReduction)
		}
		next.MultiplierReduction = *update.MultiplierReduction
	}

	if m.deps.Games != nil {
		err := m.deps.Games.UpsertGameControl(ctx, storage.GameControl{
			GameType:            gameType,
			MaxBet:              next.MaxBet,
			HouseEdgeAdjustment: next.HouseEdgeAdjustment,
			MultiplierReduction: next.MultiplierReduction,
			UpdatedAt:           m.clock.Now(),
		})
		if err != nil {
			return config.GameControl{}, fmt.Errorf("persist game controls: %w", err)
		}
	}
	m.storeControl(gameType, next)

	if m.deps.Audit != nil {
		m.deps.Audit.Record(ctx, audit.Entry{
			Level:    audit.LevelInfo,
			UserID:   by,
			GameType: gameType,
			Event:    "game_controls_updated",
			Details:  fmt.Sprintf("max_bet=%d edge_adj=%.4f reduction=%.2f", next.MaxBet, next.HouseEdgeAdjustment, next.MultiplierReduction),
		})
	}
	return next, nil
}

// LoadGameControls applies persisted overrides on top of configured defaults.
func (m *Manager) LoadGameControls(ctx context.Context) error {
	if m.deps.Games == nil {
		return nil
	}
	saved, err := m.deps.Games.ListGameControls(ctx)
	if err != nil {
		return fmt.Errorf("load game controls: %w", err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	for _, control := range saved {
		m.storeControl(normalize(control.GameType), config.GameControl{
			MaxBet:              control.MaxBet,
			HouseEdgeAdjustment: control.HouseEdgeAdjustment,
			MultiplierReduction: control.MultiplierReduction,
		})
	}
	m.logger.Info("game controls loaded", zap.Int("overrides", len(saved)))
	return nil
}

func (m *Manager) storeControl(gameType string, control config.GameControl) {
	current := *m.games.Load()
	next := make(map[string]config.GameControl, len(current)+1)
	for game, existing := range current {
		next[game] = existing
	}
	next[gameType] = control
	m.games.Store(&next)
}

func normalize(gameType string) string {
	return strings.ToLower(strings.TrimSpace(gameType))
}
