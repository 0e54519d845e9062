package storage

import (
	"context"
	"fmt"

	"github.com/claude/repcoach/internal/models"
)

// GetSettings returns all settings of a user, ordered by key.
func (db *DB) GetSettings(ctx context.Context, login string) ([]models.UserSetting, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT key, value, updated_at FROM user_settings WHERE user_login = $1 ORDER BY key`, login)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	var out []models.UserSetting
	for rows.Next() {
		var s models.UserSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PutSetting inserts or replaces one setting.
func (db *DB) PutSetting(ctx context.Context, login, key, value string) (models.UserSetting, error) {
	s := models.UserSetting{Key: key, Value: value}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO user_settings (user_login, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_login, key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING updated_at
	`, login, key, value).Scan(&s.UpdatedAt)
	if err != nil {
		return models.UserSetting{}, fmt.Errorf("storing setting: %w", err)
	}
	return s, nil
}
