package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	ReviewOpen     = "open"
	ReviewResolved = "resolved"
)

var ErrReviewNotFound = errors.New("review flag not found")

type ReviewFlag struct {
	ID         string
	UserID     string
	GameType   string
	Reason     string
	RiskScore  float64
	Status     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}

// AddReviewFlag persists flag and returns it with its generated ID.
func (s *Store) AddReviewFlag(ctx context.Context, flag ReviewFlag) (ReviewFlag, error) {
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.Status == "" {
		flag.Status = ReviewOpen
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_flags (id, user_id, game_type, reason, risk_score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, flag.ID, flag.UserID, flag.GameType, flag.Reason, flag.RiskScore, flag.Status, flag.CreatedAt.Unix())
	if err != nil {
		return ReviewFlag{}, err
	}
	return flag, nil
}

func (s *Store) ListReviewFlags(ctx context.Context, status string, limit int) ([]ReviewFlag, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, game_type, reason, risk_score, status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM review_flags
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []ReviewFlag
	for rows.Next() {
		var flag ReviewFlag
		var created int64
		var resolved sql.NullInt64
		if err := rows.Scan(&flag.ID, &flag.UserID, &flag.GameType, &flag.Reason, &flag.RiskScore, &flag.Status, &created, &resolved, &flag.ResolvedBy); err != nil {
			return nil, err
		}
		flag.CreatedAt = time.Unix(created, 0)
		if resolved.Valid {
			value := time.Unix(resolved.Int64, 0)
			flag.ResolvedAt = &value
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func (s *Store) CountReviewFlags(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM review_flags WHERE status = ?`, status).Scan(&count)
	return count, err
}

func (s *Store) ResolveReviewFlag(ctx context.Context, id, resolvedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE review_flags SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = ?
	`, ReviewResolved, time.Now().Unix(), resolvedBy, id, ReviewOpen)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReviewNotFound
	}
	return nil
}
