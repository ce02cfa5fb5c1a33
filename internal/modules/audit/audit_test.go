package audit

import (
	"context"
	"testing"
	"time"

	"economy-sentinel/internal/storage"

	"go.uber.org/zap"
)

func TestRecordPersistsAndNotifies(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := NewLogger(store, zap.NewNop())
	at := time.Now().Add(-time.Second).Truncate(time.Second)
	logger.now = func() time.Time { return at }
	var notified []storage.AuditLog
	logger.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
		notified = append(notified, entry)
	})

	ctx := context.Background()
	logger.Record(ctx, Entry{Level: LevelWarn, UserID: "u1", GameType: "slots", Event: "payout_review", Details: "12x"})

	logs, err := store.ListAuditLogs(ctx, at.Add(-time.Minute))
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Event != "payout_review" || logs[0].GameType != "slots" {
		t.Fatalf("unexpected persisted logs: %+v", logs)
	}
	if !logs[0].CreatedAt.Equal(at) {
		t.Fatalf("expected timestamp %v, got %v", at, logs[0].CreatedAt)
	}
	if len(notified) != 1 || notified[0].Level != LevelWarn || notified[0].GameType != "slots" {
		t.Fatalf("expected notifier call, got %+v", notified)
	}
}

func TestRecordWithoutStore(t *testing.T) {
	logger := NewLogger(nil, nil)
	logger.Record(context.Background(), Entry{Level: LevelCrit, Event: "emergency_activated"})
}
