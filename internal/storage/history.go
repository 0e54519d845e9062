package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// SaveWorkout records a completed session.
func (db *DB) SaveWorkout(ctx context.Context, row models.WorkoutHistoryRow, log models.WorkoutLog) (models.WorkoutHistoryRow, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return models.WorkoutHistoryRow{}, fmt.Errorf("marshaling workout log: %w", err)
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO workout_history
			(id, user_login, routine_id, remote_id, title, start_time, end_time,
			 total_sets, total_reps, exercises, log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, row.ID, row.UserLogin, row.RoutineID, row.RemoteID, row.Title, row.StartTime, row.EndTime,
		row.TotalSets, row.TotalReps, row.Exercises, data).Scan(&row.CreatedAt)
	if err != nil {
		return models.WorkoutHistoryRow{}, fmt.Errorf("inserting workout history: %w", err)
	}
	return row, nil
}

// ListWorkouts returns a user's most recent sessions first.
func (db *DB) ListWorkouts(ctx context.Context, login string, limit int) ([]models.WorkoutHistoryRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_login, routine_id, remote_id, title, start_time, end_time,
		       total_sets, total_reps, exercises, created_at
		FROM workout_history
		WHERE user_login = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, login, limit)
	if err != nil {
		return nil, fmt.Errorf("querying workout history: %w", err)
	}
	defer rows.Close()

	var out []models.WorkoutHistoryRow
	for rows.Next() {
		var r models.WorkoutHistoryRow
		if err := rows.Scan(&r.ID, &r.UserLogin, &r.RoutineID, &r.RemoteID, &r.Title, &r.StartTime, &r.EndTime,
			&r.TotalSets, &r.TotalReps, &r.Exercises, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning workout history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
