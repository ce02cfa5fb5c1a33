package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the bot's economy tables.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger ping: %w", err)
	}
	return pool, nil
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id      VARCHAR(32) PRIMARY KEY,
			wallet       BIGINT NOT NULL DEFAULT 0,
			bank         BIGINT NOT NULL DEFAULT 0,
			off_economy  BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS user_stats (
			user_id        VARCHAR(32) PRIMARY KEY REFERENCES users(user_id),
			wins           INTEGER NOT NULL DEFAULT 0,
			losses         INTEGER NOT NULL DEFAULT 0,
			total_wagered  BIGINT NOT NULL DEFAULT 0,
			total_won      BIGINT NOT NULL DEFAULT 0,
			biggest_win    BIGINT NOT NULL DEFAULT 0
		);
	`)
	return err
}

func (p *PostgresStore) GetUserBalance(ctx context.Context, userID string) (Balance, error) {
	var bal Balance
	err := p.db.QueryRow(ctx, `SELECT wallet, bank FROM users WHERE user_id = $1`, userID).Scan(&bal.Wallet, &bal.Bank)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}

func (p *PostgresStore) GetUserStats(ctx context.Context, userID string) (Stats, error) {
	var stats Stats
	err := p.db.QueryRow(ctx, `
		SELECT wins, losses, total_wagered, total_won, biggest_win
		FROM user_stats WHERE user_id = $1
	`, userID).Scan(&stats.Wins, &stats.Losses, &stats.TotalWagered, &stats.TotalWon, &stats.BiggestWin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (p *PostgresStore) WealthDistribution(ctx context.Context, exclusion Exclusion) ([]int64, error) {
	rows, err := p.db.Query(ctx, `
		SELECT wallet + bank AS wealth
		FROM users
		WHERE off_economy = FALSE
		  AND NOT (user_id = ANY($1))
		  AND ($2::BIGINT <= 0 OR wallet + bank <= $2::BIGINT)
	`, nonNil(exclusion.UserIDs), exclusion.WealthCeiling)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (p *PostgresStore) WagerTotals(ctx context.Context, exclusion Exclusion) (Totals, error) {
	var totals Totals
	err := p.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(s.total_wagered), 0), COALESCE(SUM(s.total_won), 0)
		FROM user_stats s
		JOIN users u ON u.user_id = s.user_id
		WHERE u.off_economy = FALSE
		  AND NOT (u.user_id = ANY($1))
		  AND ($2::BIGINT <= 0 OR u.wallet + u.bank <= $2::BIGINT)
	`, nonNil(exclusion.UserIDs), exclusion.WealthCeiling).Scan(&totals.Wagered, &totals.Won)
	if err != nil {
		return Totals{}, err
	}
	return totals, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
