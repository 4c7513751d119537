package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"planner/internal/model"
)

// FetchWeightLogs returns the user's weight readings in date order.
func (r *Repository) FetchWeightLogs(ctx context.Context, userID string) ([]model.WeightLog, error) {
	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT date, weight_kg FROM weight_logs WHERE user_id = ? ORDER BY date ASC`), userID)
	if err != nil {
		return nil, fmt.Errorf("query weight logs: %w", err)
	}
	defer rows.Close()

	logs := []model.WeightLog{}
	for rows.Next() {
		var l model.WeightLog
		if err := rows.Scan(&l.Date, &l.WeightKg); err != nil {
			return nil, fmt.Errorf("scan weight log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpsertWeightLog stores the reading for a date, replacing any earlier one.
func (r *Repository) UpsertWeightLog(ctx context.Context, userID, date string, weightKg float64) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO weight_logs (user_id, date, weight_kg) VALUES (?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET weight_kg = excluded.weight_kg`),
		userID, date, weightKg)
	if err != nil {
		return fmt.Errorf("upsert weight log: %w", err)
	}
	return nil
}

// FetchWeightGoal returns the goal weight, or nil if none is set.
func (r *Repository) FetchWeightGoal(ctx context.Context, userID string) (*float64, error) {
	var goal sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT weight_goal_kg FROM user_settings WHERE user_id = ?`), userID).Scan(&goal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query weight goal: %w", err)
	}
	if !goal.Valid {
		return nil, nil
	}
	return &goal.Float64, nil
}

// UpsertWeightGoal stores the goal weight; nil clears it.
func (r *Repository) UpsertWeightGoal(ctx context.Context, userID string, goalKg *float64) error {
	var v sql.NullFloat64
	if goalKg != nil {
		v = sql.NullFloat64{Float64: *goalKg, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO user_settings (user_id, weight_goal_kg) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET weight_goal_kg = excluded.weight_goal_kg`),
		userID, v)
	if err != nil {
		return fmt.Errorf("upsert weight goal: %w", err)
	}
	return nil
}
