// Package controls holds the process-wide emergency flag and health score.
// Readers get immutable snapshots; every change swaps in a new one.
package controls

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"economy-sentinel/internal/metrics"
	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/notify"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type State struct {
	EmergencyActive bool
	HealthScore     float64
	Reason          string
	Since           time.Time
	Manual          bool
}

type Config struct {
	DefaultScore      float64
	EmergencyDuration time.Duration
}

type Controls struct {
	mu       sync.Mutex
	cfg      Config
	clock    Clock
	state    atomic.Pointer[State]
	timer    Timer
	audit    *audit.Logger
	notifier *notify.Dispatcher
	logger   *zap.Logger
}

func New(cfg Config, auditLogger *audit.Logger, notifier *notify.Dispatcher, logger *zap.Logger) *Controls {
	if cfg.DefaultScore <= 0 {
		cfg.DefaultScore = 75
	}
	if cfg.EmergencyDuration <= 0 {
		cfg.EmergencyDuration = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controls{
		cfg:      cfg,
		clock:    realClock{},
		audit:    auditLogger,
		notifier: notifier,
		logger:   logger,
	}
	c.state.Store(&State{HealthScore: cfg.DefaultScore})
	metrics.HealthScore.Set(cfg.DefaultScore)
	metrics.SetEmergency(false)
	return c
}

// WithClock must be called before any other method.
func (c *Controls) WithClock(clock Clock) {
	c.clock = clock
}

// Snapshot returns the current state. It never blocks on writers.
func (c *Controls) Snapshot() State {
	return *c.state.Load()
}

func (c *Controls) EmergencyActive() bool {
	return c.state.Load().EmergencyActive
}

func (c *Controls) HealthScore() float64 {
	return c.state.Load().HealthScore
}

func (c *Controls) SetHealthScore(score float64) {
	c.mu.Lock()
	next := *c.state.Load()
	next.HealthScore = score
	c.state.Store(&next)
	c.mu.Unlock()
	metrics.HealthScore.Set(score)
}

// Activate turns emergency mode on. Automatic activations clear themselves
// after the configured duration; manual ones stay until deactivated. It
// reports whether the state changed.
func (c *Controls) Activate(ctx context.Context, reason string, manual bool) bool {
	c.mu.Lock()
	current := *c.state.Load()
	if current.EmergencyActive && (current.Manual || !manual) {
		c.mu.Unlock()
		return false
	}
	next := current
	next.EmergencyActive = true
	next.Reason = reason
	next.Since = c.clock.Now()
	next.Manual = manual
	c.state.Store(&next)
	c.stopTimerLocked()
	if !manual {
		expireCtx := context.WithoutCancel(ctx)
		c.timer = c.clock.AfterFunc(c.cfg.EmergencyDuration, func() {
			c.expire(expireCtx, &next)
		})
	}
	c.mu.Unlock()

	metrics.SetEmergency(true)
	event := "emergency_activated"
	if manual {
		event = "emergency_manual_on"
	}
	c.auditLog(ctx, audit.LevelCrit, event, reason)
	c.notifier.Notify(ctx, notify.Message{
		Kind:        "emergency",
		Title:       "Economy emergency mode activated",
		Description: reason,
		Severity:    notify.SeverityCritical,
		Fields: []notify.Field{
			{Name: "Health score", Value: fmt.Sprintf("%.1f", next.HealthScore), Inline: true},
			{Name: "Manual", Value: fmt.Sprintf("%t", manual), Inline: true},
		},
	})
	return true
}

// Deactivate turns emergency mode off and reports whether it was on.
func (c *Controls) Deactivate(ctx context.Context, reason string, manual bool) bool {
	c.mu.Lock()
	current := *c.state.Load()
	if !current.EmergencyActive {
		c.mu.Unlock()
		return false
	}
	c.clearLocked(current)
	c.stopTimerLocked()
	c.mu.Unlock()

	event := "emergency_recovered"
	if manual {
		event = "emergency_manual_off"
	}
	c.finishDeactivate(ctx, event, reason)
	return true
}

// SetEmergency is the operator override.
func (c *Controls) SetEmergency(ctx context.Context, active bool, reason string) bool {
	if active {
		return c.Activate(ctx, reason, true)
	}
	return c.Deactivate(ctx, reason, true)
}

func (c *Controls) expire(ctx context.Context, armed *State) {
	c.mu.Lock()
	current := c.state.Load()
	if !current.EmergencyActive || current.Since != armed.Since || current.Manual {
		c.mu.Unlock()
		return
	}
	c.clearLocked(*current)
	c.timer = nil
	c.mu.Unlock()

	c.finishDeactivate(ctx, "emergency_expired", "emergency duration elapsed")
}

func (c *Controls) clearLocked(current State) {
	next := current
	next.EmergencyActive = false
	next.Reason = ""
	next.Since = time.Time{}
	next.Manual = false
	c.state.Store(&next)
}

func (c *Controls) finishDeactivate(ctx context.Context, event, reason string) {
	metrics.SetEmergency(false)
	c.auditLog(ctx, audit.LevelInfo, event, reason)
	c.notifier.Notify(ctx, notify.Message{
		Kind:        "recovery",
		Title:       "Economy emergency mode cleared",
		Description: reason,
		Severity:    notify.SeverityInfo,
		Fields: []notify.Field{
			{Name: "Health score", Value: fmt.Sprintf("%.1f", c.HealthScore()), Inline: true},
		},
	})
}

func (c *Controls) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controls) auditLog(ctx context.Context, level, event, details string) {
	if c.audit == nil {
		c.logger.Info(event, zap.String("details", details))
		return
	}
	c.audit.Record(ctx, audit.Entry{Level: level, Event: event, Details: details})
}
