// This file contains the render-service database operations: replay handle
// bookkeeping and nonce tracking for request replay protection.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RenderDB provides database operations for the render service.
type RenderDB struct {
	db *sql.DB // SQLite database connection
}

// NewRenderDB creates and initializes a new render service database instance.
func NewRenderDB(dbPath string) (*RenderDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	rdb := &RenderDB{db: db}
	if err := rdb.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// createTables initializes all required tables for render operations.
func (r *RenderDB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS replays (
			battle_id TEXT PRIMARY KEY,
			handle TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS seen_nonces (
			nonce TEXT PRIMARY KEY,
			seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS ix_seen_nonces_seen_at ON seen_nonces(seen_at)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

// SaveReplay records the handle of a rendered replay page.
// A re-render of the same battle overwrites the previous handle.
func (r *RenderDB) SaveReplay(battleID, handle string) error {
	_, err := r.db.Exec(`INSERT OR REPLACE INTO replays (battle_id, handle, created_at) VALUES (?, ?, ?)`,
		battleID, handle, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	return nil
}

// GetReplay returns the stored handle for a battle, or empty string if the
// battle has not been rendered.
func (r *RenderDB) GetReplay(battleID string) (string, error) {
	var handle string
	err := r.db.QueryRow(`SELECT handle FROM replays WHERE battle_id = ?`, battleID).Scan(&handle)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get replay: %w", err)
	}
	return handle, nil
}

// HasSeenNonce reports whether a request nonce has been used before.
func (r *RenderDB) HasSeenNonce(nonce string) (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM seen_nonces WHERE nonce = ?", nonce).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return count > 0, nil
}

// SaveNonce records a request nonce to prevent future replays.
func (r *RenderDB) SaveNonce(nonce string) error {
	_, err := r.db.Exec("INSERT OR IGNORE INTO seen_nonces (nonce, seen_at) VALUES (?, ?)",
		nonce, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// CleanupOldNonces removes nonces older than the given cutoff.
func (r *RenderDB) CleanupOldNonces(olderThan time.Time) error {
	_, err := r.db.Exec("DELETE FROM seen_nonces WHERE seen_at < ?", olderThan)
	if err != nil {
		return fmt.Errorf("failed to cleanup old nonces: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (r *RenderDB) Close() error {
	return r.db.Close()
}
