// Package pgstore keeps documents in a single Postgres JSONB table.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"chgk-poll-bot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS bot_documents (
    key TEXT PRIMARY KEY,
    body JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// placeholder is the body of a row created only to be locked.
const placeholder = "null"

type Store struct {
	db *sql.DB
}

func Connect(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM bot_documents WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return body, err
}

func (s *Store) Put(ctx context.Context, key string, doc []byte) error {
	return put(ctx, s.db, key, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, key string, doc []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO bot_documents (key, body, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		key, string(doc))
	return err
}

// Update locks the row for the duration of fn. A document that does not exist
// yet is created empty first so there is always a row to lock.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bot_documents (key, body) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, placeholder); err != nil {
		return err
	}
	var cur []byte
	if err := tx.QueryRowContext(ctx, `SELECT body FROM bot_documents WHERE key = $1 FOR UPDATE`, key).Scan(&cur); err != nil {
		return err
	}
	next, err := fn(existing(cur))
	if err != nil {
		return err
	}
	if err := put(ctx, tx, key, next); err != nil {
		return err
	}
	return tx.Commit()
}

// existing maps the placeholder body of a freshly created row back to "no
// document".
func existing(body []byte) []byte {
	if len(body) == 0 || string(body) == placeholder {
		return nil
	}
	return body
}

func (s *Store) Close() error { return s.db.Close() }
