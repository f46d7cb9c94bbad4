// Package pgstore is a corpus.Store backed by PostgreSQL via pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voiceqa/internal/corpus"
	"github.com/MrWong99/voiceqa/internal/qa"
)

// Schema is the DDL for the qa_records table. Execute it via [Store.Migrate]
// or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS qa_records (
    id            BIGSERIAL PRIMARY KEY,
    category      TEXT NOT NULL DEFAULT '',
    question      TEXT NOT NULL,
    answer        TEXT NOT NULL,
    question_norm TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_qa_records_norm ON qa_records(question_norm);
CREATE INDEX IF NOT EXISTS idx_qa_records_category ON qa_records(category);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store keeps records in PostgreSQL.
type Store struct {
	db   DB
	pool *pgxpool.Pool // set by Open; nil when constructed with New
}

var _ corpus.Store = (*Store)(nil)

// New wraps an existing connection or pool. The caller is responsible for
// calling [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, verifies the connection, and applies [Schema].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool created by [Open]. It is a no-op for stores built
// with [New].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the pool created by [Open]. Stores built with [New] always
// report healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Name implements corpus.Source.
func (s *Store) Name() string { return "postgres" }

// Load returns all records in insertion order.
func (s *Store) Load(ctx context.Context) ([]qa.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT category, question, answer FROM qa_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	defer rows.Close()

	var out []qa.Record
	for rows.Next() {
		var r qa.Record
		if err := rows.Scan(&r.Category, &r.Question, &r.Answer); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate: %w", err)
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
	_, err = s.db.Exec(ctx,
		`INSERT INTO qa_records (category, question, answer, question_norm) VALUES ($1, $2, $3, $4)`,
		rec.Category, rec.Question, rec.Answer, qa.Normalize(rec.Question))
	if err != nil {
		if isDuplicateKeyError(err) {
			return corpus.ErrDuplicate
		}
		return fmt.Errorf("pgstore: insert: %w", err)
	}
	return nil
}

// isDuplicateKeyError reports a unique violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
