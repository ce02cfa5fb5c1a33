// Package risk scores per-user game behavior and applies the resulting
// action tier: review flags, bet limits, advisory restrictions and blocks.
package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"economy-sentinel/internal/config"
	"economy-sentinel/internal/ledger"
	"economy-sentinel/internal/metrics"
	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/notify"
	"economy-sentinel/internal/storage"
	"economy-sentinel/internal/utils"

	"go.uber.org/zap"
)

type Level string

const (
	LevelMinimal  Level = "MINIMAL"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionRestrict Decision = "RESTRICT"
)

const (
	TierNone                 = ""
	TierFlagForReview        = "flag_for_review"
	TierReduceLimits         = "reduce_limits"
	TierTemporaryRestriction = "temporary_restriction"
	TierSuspendNotify        = "suspend_notify"
)

const RestrictionTemporaryBan = "TEMPORARY_BAN"

const AlertHighRisk = "HIGH_RISK_DETECTED"

type Restriction struct {
	Type        string
	StartTime   time.Time
	EndTime     time.Time
	Reason      string
	AutoApplied bool
}

type Limit struct {
	MaxBet  int64
	Reason  string
	Expires time.Time
}

type Alert struct {
	RiskScore            float64
	Context              string
	Status               string
	RequiresManualReview bool
	CreatedAt            time.Time
}

// Assessment is the outcome of one analyzed action. RiskScore is clamped to
// [0,100]; RawScore is the unclamped detector sum used for tier selection.
type Assessment struct {
	RiskScore    float64
	RawScore     float64
	Level        Level
	Patterns     []string
	Tier         string
	Action       Decision
	Restrictions []Restriction
}

type Permission struct {
	Allowed bool
	Reason  string
}

type Stats struct {
	Tracked int
	Blocked int
	Flagged int
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type ReviewRecorder interface {
	AddReviewFlag(ctx context.Context, flag storage.ReviewFlag) (storage.ReviewFlag, error)
}

type StatsSource interface {
	GetUserStats(ctx context.Context, userID string) (ledger.Stats, error)
}

// Deps are the optional collaborators of the engine. Any of them may be nil.
type Deps struct {
	Edges    HouseEdges
	Reviews  ReviewRecorder
	Stats    StatsSource
	Audit    *audit.Logger
	Notifier *notify.Dispatcher
	Logger   *zap.Logger
}

type Engine struct {
	mu      sync.RWMutex
	cfg     config.RiskConfig
	clock   Clock
	deps    Deps
	logger  *zap.Logger
	blocked map[string]string

	profiles     *ProfileStore
	limits       *utils.TTLCache[Limit]
	restrictions *utils.TTLCache[Restriction]
	alerts       *utils.TTLCache[Alert]
	flagged      *utils.TTLCache[string]
}

func NewEngine(cfg config.RiskConfig, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:     cfg,
		clock:   realClock{},
		deps:    deps,
		logger:  logger,
		blocked: make(map[string]string),
	}
	now := func() time.Time { return e.clock.Now() }
	e.profiles = NewProfileStore(cfg.MaxActions, time.Duration(cfg.ProfileTTLMinutes)*time.Minute, now)
	e.limits = utils.NewTTLCache[Limit](now)
	e.restrictions = utils.NewTTLCache[Restriction](now)
	e.alerts = utils.NewTTLCache[Alert](now)
	e.flagged = utils.NewTTLCache[string](now)
	return e
}

// WithClock replaces the time source. It is not synchronized and must be
// called before the engine is shared.
func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// AnalyzeGameAction records the action on the user's profile, runs the
// detectors and applies the highest matching action tier.
func (e *Engine) AnalyzeGameAction(ctx context.Context, userID, gameType, action string, data ActionData) Assessment {
	now := e.clock.Now()
	ts := data.Timestamp
	if ts.IsZero() {
		ts = now
	}

	profile := e.profiles.RecordAction(userID, gameType, action, data, ts)
	findings := Detect(profile, gameType, now, e.cfg, e.deps.Edges)

	raw := 0.0
	patterns := make([]string, 0, len(findings))
	for _, finding := range findings {
		raw += finding.Score
		patterns = append(patterns, finding.Pattern)
	}
	score := clampScore(raw)
	e.profiles.SetAnalysis(userID, gameType, patterns, score)

	assessment := Assessment{
		RiskScore: score,
		RawScore:  raw,
		Level:     e.Classify(score),
		Patterns:  patterns,
		Action:    DecisionAllow,
	}
	metrics.RiskAssessments.WithLabelValues(string(assessment.Level)).Inc()

	if score >= e.cfg.Levels.Medium {
		assessment.Tier = e.tierFor(raw)
		e.dispatch(ctx, userID, gameType, raw, patterns, profile)
		if assessment.Tier != TierFlagForReview && assessment.Tier != TierNone {
			assessment.Action = DecisionRestrict
		}
	}
	if restriction, ok := e.restrictions.Get(userID); ok {
		assessment.Restrictions = []Restriction{restriction}
	}
	return assessment
}

func (e *Engine) Classify(score float64) Level {
	levels := e.cfg.Levels
	switch {
	case score >= levels.Critical:
		return LevelCritical
	case score >= levels.High:
		return LevelHigh
	case score >= levels.Medium:
		return LevelMedium
	case score >= levels.Low:
		return LevelLow
	default:
		return LevelMinimal
	}
}

func (e *Engine) tierFor(raw float64) string {
	tiers := e.cfg.Tiers
	switch {
	case raw >= tiers.SuspendNotify:
		return TierSuspendNotify
	case raw >= tiers.TemporaryRestriction:
		return TierTemporaryRestriction
	case raw >= tiers.ReduceLimits:
		return TierReduceLimits
	case raw >= tiers.FlagForReview:
		return TierFlagForReview
	default:
		return TierNone
	}
}

func (e *Engine) dispatch(ctx context.Context, userID, gameType string, raw float64, patterns []string, profile Profile) {
	tier := e.tierFor(raw)
	if tier == TierNone {
		return
	}
	reason := fmt.Sprintf("risk score %.0f (%s)", raw, strings.Join(patterns, ", "))
	now := e.clock.Now()

	switch tier {
	case TierFlagForReview:
		if _, ok := e.flagged.Get(userID); ok {
			return
		}
		e.recordReview(ctx, userID, gameType, reason, raw)
		e.auditLog(ctx, audit.LevelInfo, userID, gameType, "risk_flagged", reason)
	case TierReduceLimits:
		reduction := math.Min(0.8, raw/100)
		limit := Limit{
			MaxBet:  int64(float64(e.cfg.BaseLimit) * (1 - reduction)),
			Reason:  reason,
			Expires: now.Add(time.Duration(e.cfg.LimitTTLHours) * time.Hour),
		}
		e.limits.Set(userID, limit, time.Duration(e.cfg.LimitTTLHours)*time.Hour)
		e.auditLog(ctx, audit.LevelWarn, userID, gameType, "risk_limits_reduced", fmt.Sprintf("max bet %d: %s", limit.MaxBet, reason))
	case TierTemporaryRestriction:
		duration := time.Duration(e.cfg.RestrictionMinutes) * time.Minute
		restriction := Restriction{
			Type:        RestrictionTemporaryBan,
			StartTime:   now,
			EndTime:     now.Add(duration),
			Reason:      reason,
			AutoApplied: true,
		}
		e.restrictions.Set(userID, restriction, duration)
		e.auditLog(ctx, audit.LevelWarn, userID, gameType, "risk_restricted", reason)
	case TierSuspendNotify:
		if e.IsBlocked(userID) {
			return
		}
		e.mu.Lock()
		e.blocked[userID] = reason
		e.mu.Unlock()
		e.alerts.Set(userID, Alert{
			RiskScore:            raw,
			Context:              gameType,
			Status:               AlertHighRisk,
			RequiresManualReview: true,
			CreatedAt:            now,
		}, time.Duration(e.cfg.AlertTTLHours)*time.Hour)
		e.recordReview(ctx, userID, gameType, reason, raw)
		e.auditLog(ctx, audit.LevelCrit, userID, gameType, "risk_suspended", reason)
		e.notifySuspension(ctx, userID, gameType, raw, patterns, profile)
	}
	// Every tier at or above flag-for-review counts the user as flagged.
	e.flagged.Set(userID, gameType, time.Duration(e.cfg.AlertTTLHours)*time.Hour)
	metrics.RiskActions.WithLabelValues(tier).Inc()
	e.logger.Info("risk tier applied",
		zap.String("user_id", userID),
		zap.String("game", gameType),
		zap.String("tier", tier),
		zap.Float64("score", raw),
	)
}

func (e *Engine) recordReview(ctx context.Context, userID, gameType, reason string, score float64) {
	if e.deps.Reviews == nil {
		return
	}
	_, err := e.deps.Reviews.AddReviewFlag(ctx, storage.ReviewFlag{
		UserID:    userID,
		GameType:  gameType,
		Reason:    reason,
		RiskScore: score,
		CreatedAt: e.clock.Now(),
	})
	if err != nil {
		e.logger.Warn("review flag write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) notifySuspension(ctx context.Context, userID, gameType string, score float64, patterns []string, profile Profile) {
	fields := []notify.Field{
		{Name: "User", Value: "<@" + userID + ">", Inline: true},
		{Name: "Game", Value: gameType, Inline: true},
		{Name: "Risk score", Value: fmt.Sprintf("%.0f", score), Inline: true},
		{Name: "Patterns", Value: orNone(strings.Join(patterns, ", "))},
		{Name: "Recent games", Value: orNone(formatHistory(profile.Recent(e.cfg.RecentHistoryInAlert)))},
	}
	if e.deps.Stats != nil {
		stats, err := e.deps.Stats.GetUserStats(ctx, userID)
		if err != nil {
			e.logger.Warn("ledger stats unavailable for alert", zap.String("user_id", userID), zap.Error(err))
			fields = append(fields, notify.Field{Name: "Ledger stats", Value: "unavailable"})
		} else {
			fields = append(fields, notify.Field{
				Name: "Ledger stats",
				Value: fmt.Sprintf("wins %d, losses %d, wagered %d, won %d, biggest win %d",
					stats.Wins, stats.Losses, stats.TotalWagered, stats.TotalWon, stats.BiggestWin),
			})
		}
	}
	e.deps.Notifier.Notify(ctx, notify.Message{
		Kind:        "risk_suspend",
		Title:       "High-risk player suspended",
		Description: "Automated risk analysis blocked this user pending manual review.",
		Severity:    notify.SeverityCritical,
		Fields:      fields,
	})
}

// IsActionAllowed is the single authority callers consult before executing
// an action. Only blocked users are denied unless enforcement is enabled.
func (e *Engine) IsActionAllowed(userID, action string, amount int64) Permission {
	e.mu.RLock()
	reason, blocked := e.blocked[userID]
	e.mu.RUnlock()
	if blocked {
		return Permission{Allowed: false, Reason: "account blocked pending review: " + reason}
	}

	if restriction, ok := e.restrictions.Get(userID); ok {
		if e.cfg.EnforceRestrictions {
			return Permission{Allowed: false, Reason: fmt.Sprintf("temporarily restricted until %s", restriction.EndTime.Format(time.RFC3339))}
		}
		e.logger.Debug("advisory restriction not enforced", zap.String("user_id", userID), zap.String("action", action))
	}
	if limit, ok := e.limits.Get(userID); ok && amount > limit.MaxBet {
		if e.cfg.EnforceRestrictions {
			return Permission{Allowed: false, Reason: fmt.Sprintf("bet exceeds reduced limit of %d", limit.MaxBet)}
		}
		e.logger.Debug("advisory limit exceeded",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.Int64("limit", limit.MaxBet),
		)
	}
	return Permission{Allowed: true}
}

func (e *Engine) Block(ctx context.Context, userID, reason, by string) {
	e.mu.Lock()
	e.blocked[userID] = reason
	e.mu.Unlock()
	e.auditLog(ctx, audit.LevelWarn, userID, "", "user_blocked", fmt.Sprintf("%s (by %s)", reason, by))
}

// Unblock lifts a block and clears the matching alert. It reports whether
// the user was blocked.
func (e *Engine) Unblock(ctx context.Context, userID, by string) bool {
	e.mu.Lock()
	_, ok := e.blocked[userID]
	delete(e.blocked, userID)
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.alerts.Delete(userID)
	e.auditLog(ctx, audit.LevelInfo, userID, "", "user_unblocked", "by "+by)
	return true
}

func (e *Engine) IsBlocked(userID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.blocked[userID]
	return ok
}

// Blocked lists blocked user IDs in sorted order.
func (e *Engine) Blocked() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.blocked))
	for id := range e.blocked {
		out = append(out, id)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// RiskScore returns the last reported score for the user, 0 if untracked.
func (e *Engine) RiskScore(userID string) float64 {
	profile, ok := e.profiles.Get(userID)
	if !ok {
		return 0
	}
	return profile.RiskScore
}

func (e *Engine) Profile(userID string) (Profile, bool) {
	return e.profiles.Get(userID)
}

func (e *Engine) ActiveLimit(userID string) (Limit, bool) {
	return e.limits.Get(userID)
}

func (e *Engine) ActiveRestriction(userID string) (Restriction, bool) {
	return e.restrictions.Get(userID)
}

func (e *Engine) ActiveAlert(userID string) (Alert, bool) {
	return e.alerts.Get(userID)
}

// Sweep drops expired profiles and records and returns how many were removed.
func (e *Engine) Sweep() int {
	removed := e.profiles.Sweep()
	removed += e.limits.Sweep()
	removed += e.restrictions.Sweep()
	removed += e.alerts.Sweep()
	removed += e.flagged.Sweep()
	return removed
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	blocked := len(e.blocked)
	e.mu.RUnlock()
	return Stats{
		Tracked: e.profiles.Len(),
		Blocked: blocked,
		Flagged: e.flagged.Len(),
	}
}

// Reset clears the user's profile and active risk records but keeps a block.
func (e *Engine) Reset(userID string) {
	e.profiles.Delete(userID)
	e.limits.Delete(userID)
	e.restrictions.Delete(userID)
	e.flagged.Delete(userID)
}

func (e *Engine) auditLog(ctx context.Context, level, userID, gameType, event, details string) {
	if e.deps.Audit == nil {
		return
	}
	e.deps.Audit.Record(ctx, audit.Entry{Level: level, UserID: userID, GameType: gameType, Event: event, Details: details})
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

func formatHistory(actions []GameAction) string {
	lines := make([]string, 0, len(actions))
	for _, action := range actions {
		line := fmt.Sprintf("%s %s %s", action.Timestamp.Format("15:04:05"), action.GameType, action.Action)
		if action.BetAmount > 0 {
			line += fmt.Sprintf(" bet %d", action.BetAmount)
		}
		if action.Result != "" {
			line += fmt.Sprintf(" %s %d", action.Result, action.Payout)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
