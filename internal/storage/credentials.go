package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetCredential returns the sealed key blob for scope and provider.
func (db *DB) GetCredential(ctx context.Context, scope, provider string) ([]byte, bool, error) {
	var sealed []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT sealed FROM credentials WHERE scope = $1 AND provider = $2`,
		scope, provider).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying credential: %w", err)
	}
	return sealed, true, nil
}

// PutCredential inserts or replaces a sealed key blob.
func (db *DB) PutCredential(ctx context.Context, scope, provider string, sealed []byte) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO credentials (scope, provider, sealed)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, provider) DO UPDATE
			SET sealed = EXCLUDED.sealed, updated_at = NOW()
	`, scope, provider, sealed)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// DeleteCredential removes a key blob and reports whether one existed.
func (db *DB) DeleteCredential(ctx context.Context, scope, provider string) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM credentials WHERE scope = $1 AND provider = $2`, scope, provider)
	if err != nil {
		return false, fmt.Errorf("deleting credential: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
