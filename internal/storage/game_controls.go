package storage

import (
	"context"
	"time"
)

type GameControl struct {
	GameType            string
	MaxBet              int64
	HouseEdgeAdjustment float64
	MultiplierReduction float64
	UpdatedAt           time.Time
}

func (s *Store) UpsertGameControl(ctx context.Context, control GameControl) error {
	if control.UpdatedAt.IsZero() {
		control.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_controls (game_type, max_bet, house_edge_adjustment, multiplier_reduction, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_type) DO UPDATE SET
			max_bet = excluded.max_bet,
			house_edge_adjustment = excluded.house_edge_adjustment,
			multiplier_reduction = excluded.multiplier_reduction,
			updated_at = excluded.updated_at
	`, control.GameType, control.MaxBet, control.HouseEdgeAdjustment, control.MultiplierReduction, control.UpdatedAt.Unix())
	return err
}

func (s *Store) ListGameControls(ctx context.Context) ([]GameControl, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_type, max_bet, house_edge_adjustment, multiplier_reduction, updated_at
		FROM game_controls
		ORDER BY game_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var controls []GameControl
	for rows.Next() {
		var control GameControl
		var updated int64
		if err := rows.Scan(&control.GameType, &control.MaxBet, &control.HouseEdgeAdjustment, &control.MultiplierReduction, &updated); err != nil {
			return nil, err
		}
		control.UpdatedAt = time.Unix(updated, 0)
		controls = append(controls, control)
	}
	return controls, rows.Err()
}
