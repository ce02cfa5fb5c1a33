package controls

import (
	"context"
	"sync"
	"testing"
	"time"

	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/notify"
	"economy-sentinel/internal/storage"

	"go.uber.org/zap"
)

type fakeTimer struct {
	stopped bool
	at      time.Time
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due, pending []*fakeTimer
	for _, timer := range f.timers {
		if f.now.Before(timer.at) {
			pending = append(pending, timer)
			continue
		}
		due = append(due, timer)
	}
	f.timers = pending
	f.mu.Unlock()
	for _, timer := range due {
		if !timer.stopped {
			timer.fn()
		}
	}
}

func newTestControls(t *testing.T) (*Controls, *fakeClock, *notify.Recorder, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(store.Close)

	logger := zap.NewNop()
	recorder := &notify.Recorder{}
	dispatcher := notify.NewDispatcher(logger, false)
	dispatcher.SetSink(recorder)

	c := New(Config{DefaultScore: 75, EmergencyDuration: time.Hour}, audit.NewLogger(store, logger), dispatcher, logger)
	clock := &fakeClock{now: time.Unix(0, 0)}
	c.WithClock(clock)
	return c, clock, recorder, store
}

func TestDefaultsToNeutralScore(t *testing.T) {
	c, _, _, _ := newTestControls(t)
	state := c.Snapshot()
	if state.EmergencyActive || state.HealthScore != 75 {
		t.Fatalf("unexpected initial state %+v", state)
	}
}

func TestAutomaticEmergencyExpires(t *testing.T) {
	c, clock, recorder, _ := newTestControls(t)
	ctx := context.Background()

	if !c.Activate(ctx, "daily loss cap exceeded", false) {
		t.Fatalf("expected activation")
	}
	if c.Activate(ctx, "again", false) {
		t.Fatalf("expected repeated activation to be a no-op")
	}
	if !c.EmergencyActive() {
		t.Fatalf("expected emergency active")
	}

	clock.Advance(time.Hour)
	if c.EmergencyActive() {
		t.Fatalf("expected emergency cleared after duration")
	}
	messages := recorder.Messages()
	if len(messages) != 2 || messages[0].Kind != "emergency" || messages[1].Kind != "recovery" {
		t.Fatalf("expected emergency then recovery notices, got %+v", messages)
	}
}

func TestManualOverrideIsSticky(t *testing.T) {
	c, clock, _, store := newTestControls(t)
	ctx := context.Background()

	if !c.SetEmergency(ctx, true, "operator drill") {
		t.Fatalf("expected manual activation")
	}
	if c.Activate(ctx, "automatic", false) {
		t.Fatalf("expected automatic activation not to replace manual override")
	}
	clock.Advance(2 * time.Hour)
	state := c.Snapshot()
	if !state.EmergencyActive || !state.Manual {
		t.Fatalf("expected manual emergency to persist, got %+v", state)
	}

	if !c.SetEmergency(ctx, false, "drill over") {
		t.Fatalf("expected manual deactivation")
	}
	logs, err := store.ListAuditLogs(ctx, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var on, off bool
	for _, entry := range logs {
		switch entry.Event {
		case "emergency_manual_on":
			on = true
		case "emergency_manual_off":
			off = true
		}
	}
	if !on || !off {
		t.Fatalf("expected manual override to be audited, got %+v", logs)
	}
}

func TestDeactivateStopsTimer(t *testing.T) {
	c, clock, recorder, _ := newTestControls(t)
	ctx := context.Background()

	c.Activate(ctx, "house edge below floor", false)
	if !c.Deactivate(ctx, "conditions resolved", false) {
		t.Fatalf("expected deactivation")
	}
	c.Activate(ctx, "second incident", false)
	clock.Advance(30 * time.Minute)
	if !c.EmergencyActive() {
		t.Fatalf("expected stale timer not to clear the new emergency")
	}
	if got := len(recorder.Messages()); got != 3 {
		t.Fatalf("expected three notices, got %d", got)
	}
}

func TestSetHealthScore(t *testing.T) {
	c, _, _, _ := newTestControls(t)
	c.SetHealthScore(42)
	if c.HealthScore() != 42 {
		t.Fatalf("expected score 42, got %f", c.HealthScore())
	}
}
