// Package database implements reservation storage on SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"residia/internal/apperr"
)

// DB wraps sql.DB for the reservation engine.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

var (
	ErrNotFound               = apperr.New(apperr.KindNotFound, "not found")
	ErrConcurrentModification = apperr.Conflict(apperr.ReasonStaleState, "reservation was modified concurrently", nil)
	ErrOverlap                = apperr.Conflict(apperr.ReasonSlotTaken, "slot already taken", nil)
)

// overlapMarker is raised by the reservations_no_overlap trigger.
const overlapMarker = "reservation_overlap"

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	BusyTimeout     time.Duration
	ConnMaxLifetime time.Duration
}

// NewDB opens the database at path and runs migrations.
// Transactions start with BEGIN IMMEDIATE so booking transactions serialize on the write lock.
func NewDB(path string, opts Options, logger zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, busy.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(lifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := logger.With().Str("component", "database").Logger()
	l.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, path: path, logger: l}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS communities (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS amenities (
			id INTEGER PRIMARY KEY,
			community_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			is_reservable BOOLEAN NOT NULL DEFAULT 1,
			limits_json TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS blocks (
			id INTEGER PRIMARY KEY,
			community_id INTEGER NOT NULL,
			parent_id INTEGER,
			name TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS units (
			id INTEGER PRIMARY KEY,
			community_id INTEGER NOT NULL,
			block_id INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS unit_owners (
			unit_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (unit_id, user_id),
			FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS memberships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			community_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			block_id INTEGER
		)`,

		// date is YYYY-MM-DD text, start_time/end_time are seconds since midnight.
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			community_id INTEGER NOT NULL,
			amenity_id INTEGER NOT NULL,
			subject_user_id INTEGER NOT NULL,
			created_by INTEGER NOT NULL,
			unit_id INTEGER,
			date TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			admin_notes TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CHECK (start_time < end_time)
		)`,

		`CREATE TRIGGER IF NOT EXISTS reservations_no_overlap
		BEFORE INSERT ON reservations
		WHEN NEW.status IN ('pending', 'approved')
		BEGIN
			SELECT RAISE(ABORT, 'reservation_overlap')
			WHERE EXISTS (
				SELECT 1 FROM reservations
				WHERE amenity_id = NEW.amenity_id
				  AND date = NEW.date
				  AND status IN ('pending', 'approved')
				  AND start_time < NEW.end_time
				  AND end_time > NEW.start_time
			);
		END`,

		`CREATE TRIGGER IF NOT EXISTS reservations_no_overlap_revive
		BEFORE UPDATE OF status ON reservations
		WHEN NEW.status IN ('pending', 'approved') AND OLD.status NOT IN ('pending', 'approved')
		BEGIN
			SELECT RAISE(ABORT, 'reservation_overlap')
			WHERE EXISTS (
				SELECT 1 FROM reservations
				WHERE id <> NEW.id
				  AND amenity_id = NEW.amenity_id
				  AND date = NEW.date
				  AND status IN ('pending', 'approved')
				  AND start_time < NEW.end_time
				  AND end_time > NEW.start_time
			);
		END`,

		`CREATE INDEX IF NOT EXISTS idx_amenities_community ON amenities(community_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_community ON blocks(community_id)`,
		`CREATE INDEX IF NOT EXISTS idx_units_block ON units(block_id)`,
		`CREATE INDEX IF NOT EXISTS idx_unit_owners_user ON unit_owners(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id, community_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations(amenity_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_community ON reservations(community_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_unit ON reservations(unit_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isOverlapViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), overlapMarker)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
