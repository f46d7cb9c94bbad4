// Package sqlitestore is a corpus.Store backed by an embedded SQLite database
// (pure Go, no cgo). The schema is managed with goose migrations embedded in
// the binary.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/corpus/sqlitestore/migrations"
	"github.com/MrWong99/voiceqa/internal/qa"
)

// Store keeps records in the questions table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ corpus.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlitestore: create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func enablePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlitestore: execute %s: %w", p, err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("sqlitestore: migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("sqlitestore: run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Name implements corpus.Source.
func (s *Store) Name() string { return "sqlite" }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Load returns all records in insertion order.
func (s *Store) Load(ctx context.Context) ([]qa.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, question, answer FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load: %w", err)
	}
	defer rows.Close()

	var out []qa.Record
	for rows.Next() {
		var r qa.Record
		if err := rows.Scan(&r.Category, &r.Question, &r.Answer); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate: %w", err)
	}
	return out, nil
}

// Add inserts rec. A question that normalizes to an existing one returns
// corpus.ErrDuplicate.
func (s *Store) Add(ctx context.Context, rec qa.Record) error {
	rec, err := corpus.CheckRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (id, category, question, answer, question_norm, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), rec.Category, rec.Question, rec.Answer,
		qa.Normalize(rec.Question), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return corpus.ErrDuplicate
		}
		return fmt.Errorf("sqlitestore: insert: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: count: %w", err)
	}
	return n, nil
}
