package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	namespace  TEXT NOT NULL,
	entry_key  TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	PRIMARY KEY (namespace, entry_key)
)`

// SQLiteStore keeps mappings in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens the database at path (":memory:" for a private in-memory DB)
// and creates the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM mappings WHERE namespace = ? AND entry_key = ?`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get mapping: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, namespace, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (namespace, entry_key, value) VALUES (?, ?, ?)
		ON CONFLICT (namespace, entry_key) DO UPDATE
		SET value = excluded.value,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		namespace, key, value)
	if err != nil {
		return fmt.Errorf("set mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM mappings WHERE namespace = ? AND entry_key = ?`, namespace, key); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_key, value FROM mappings WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	namespace  TEXT NOT NULL,
	entry_key  TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, entry_key)
)`

// PostgresStore keeps mappings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore connects to dsn and creates the schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create DB pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM mappings WHERE namespace = $1 AND entry_key = $2`, namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get mapping: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, namespace, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mappings (namespace, entry_key, value) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, entry_key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = now()`,
		namespace, key, value)
	if err != nil {
		return fmt.Errorf("set mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM mappings WHERE namespace = $1 AND entry_key = $2`, namespace, key); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_key, value FROM mappings WHERE namespace = $1`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
