package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListPhonetics returns a user's mappings ordered by category, canonical
// value and alternative.
func (db *DB) ListPhonetics(ctx context.Context, login string) ([]models.PhoneticMapping, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_login, canonical, alternative, category, created_at
		FROM phonetic_mappings
		WHERE user_login = $1
		ORDER BY category, canonical, alternative
	`, login)
	if err != nil {
		return nil, fmt.Errorf("querying phonetic mappings: %w", err)
	}
	defer rows.Close()

	var out []models.PhoneticMapping
	for rows.Next() {
		var m models.PhoneticMapping
		if err := rows.Scan(&m.ID, &m.UserLogin, &m.Canonical, &m.Alternative, &m.Category, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning phonetic mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertPhonetic adds a mapping or, when the user already mapped the same
// alternative, replaces its canonical value and category.
func (db *DB) UpsertPhonetic(ctx context.Context, m models.PhoneticMapping) (models.PhoneticMapping, error) {
	m.Alternative = strings.ToLower(strings.TrimSpace(m.Alternative))
	m.Canonical = strings.TrimSpace(m.Canonical)
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO phonetic_mappings (id, user_login, canonical, alternative, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_login, alternative) DO UPDATE
			SET canonical = EXCLUDED.canonical, category = EXCLUDED.category
		RETURNING id, created_at
	`, m.ID, m.UserLogin, m.Canonical, m.Alternative, m.Category).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return models.PhoneticMapping{}, fmt.Errorf("upserting phonetic mapping: %w", err)
	}
	return m, nil
}

// DeletePhonetic removes one of the user's mappings.
func (db *DB) DeletePhonetic(ctx context.Context, login string, id uuid.UUID) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM phonetic_mappings WHERE id = $1 AND user_login = $2`, id, login)
	if err != nil {
		return false, fmt.Errorf("deleting phonetic mapping: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetPhonetics replaces all of a user's mappings with defaults.
func (db *DB) ResetPhonetics(ctx context.Context, login string, defaults []models.PhoneticMapping) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM phonetic_mappings WHERE user_login = $1`, login); err != nil {
		return fmt.Errorf("clearing phonetic mappings: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range defaults {
		batch.Queue(`
			INSERT INTO phonetic_mappings (id, user_login, canonical, alternative, category)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_login, alternative) DO NOTHING
		`, uuid.New(), login, m.Canonical, strings.ToLower(m.Alternative), m.Category)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seeding phonetic mappings: %w", err)
	}
	return tx.Commit(ctx)
}
