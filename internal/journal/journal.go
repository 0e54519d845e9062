// Package journal keeps a local SQLite copy of in-progress workout logs and
// the remote record each one maps to, so a crash or a failed sync does not
// lose logged sets.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/repcoach/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("journal entry not found")

// Entry is one journaled session.
type Entry struct {
	Key       string
	RemoteID  string
	Log       models.WorkoutLog
	Completed bool
	UpdatedAt time.Time
}

// Journal is the SQLite-backed session journal.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at dir/journal.db.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "journal.db"))
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		key        TEXT PRIMARY KEY,
		remote_id  TEXT NOT NULL DEFAULT '',
		log        TEXT NOT NULL,
		completed  INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Save stores the latest snapshot for key, keeping any remote id.
func (j *Journal) Save(key string, log models.WorkoutLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshaling log: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO sessions (key, log, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET log = excluded.log, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving journal entry: %w", err)
	}
	return nil
}

// SetRemoteID records the remote record created for key.
func (j *Journal) SetRemoteID(key, remoteID string) error {
	res, err := j.db.Exec(`UPDATE sessions SET remote_id = ?, updated_at = ? WHERE key = ?`,
		remoteID, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("setting remote id: %w", err)
	}
	return requireRow(res)
}

// MarkComplete flags key as fully synced.
func (j *Journal) MarkComplete(key string) error {
	res, err := j.db.Exec(`UPDATE sessions SET completed = 1, updated_at = ? WHERE key = ?`,
		time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("marking journal entry complete: %w", err)
	}
	return requireRow(res)
}

// Get returns the entry for key.
func (j *Journal) Get(key string) (Entry, error) {
	row := j.db.QueryRow(`SELECT key, remote_id, log, completed, updated_at FROM sessions WHERE key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Pending returns entries not yet fully synced, oldest first.
func (j *Journal) Pending() ([]Entry, error) {
	rows, err := j.db.Query(`SELECT key, remote_id, log, completed, updated_at FROM sessions
		WHERE completed = 0 ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("querying pending entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e         Entry
		data      string
		completed int
	)
	if err := s.Scan(&e.Key, &e.RemoteID, &data, &completed, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(data), &e.Log); err != nil {
		return Entry{}, fmt.Errorf("decoding journaled log %s: %w", e.Key, err)
	}
	e.Completed = completed != 0
	return e, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
