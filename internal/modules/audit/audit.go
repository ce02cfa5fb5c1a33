package audit

import (
	"context"
	"time"

	"economy-sentinel/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Entry is one economy event. UserID and GameType are empty for
// economy-wide events such as emergency transitions.
type Entry struct {
	Level    string
	UserID   string
	GameType string
	Event    string
	Details  string
}

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{store: store, logger: logger, now: time.Now}
}

// SetNotifier must be called before the logger is shared between goroutines.
func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Record(ctx context.Context, entry Entry) {
	row := storage.AuditLog{
		UserID:    entry.UserID,
		GameType:  entry.GameType,
		Level:     entry.Level,
		Event:     entry.Event,
		Details:   entry.Details,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, row); err != nil {
			l.logger.Warn("audit write failed", zap.String("event", entry.Event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, row)
	}

	fields := []zap.Field{zap.String("level", entry.Level), zap.String("event", entry.Event)}
	if entry.UserID != "" {
		fields = append(fields, zap.String("user_id", entry.UserID))
	}
	if entry.GameType != "" {
		fields = append(fields, zap.String("game", entry.GameType))
	}
	fields = append(fields, zap.String("details", entry.Details))
	if entry.Level == LevelCrit {
		l.logger.Warn("audit", fields...)
		return
	}
	l.logger.Info("audit", fields...)
}
