// Package db persists invoices and reads the reference and dossier tables
// from PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned when no connection settings are present.
var ErrNoDatabase = errors.New("no database configuration")

// Querier is the subset of *pgxpool.Pool the stores use.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DatabaseURL returns DATABASE_URL, or a URL built from DB_HOST, DB_PORT,
// DB_USER, DB_PASSWORD and DB_NAME. It is empty when neither is set.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	dbname := os.Getenv("DB_NAME")
	if host == "" || user == "" || dbname == "" {
		return ""
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		user, os.Getenv("DB_PASSWORD"), host, port, dbname)
}

// Open creates and pings a connection pool for url.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, ErrNoDatabase
	}
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings sized for PgBouncer
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Schema creates the invoice tables. The reference and dossier tables are
// owned by the transit application and only read here.
const Schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id          BIGSERIAL PRIMARY KEY,
	m_fe_num    TEXT NOT NULL DEFAULT '',
	m_fe_date   TEXT NOT NULL DEFAULT '',
	m_fe_devise TEXT NOT NULL DEFAULT '',
	m_fe_pnet   NUMERIC(14,3) NOT NULL DEFAULT 0,
	m_fe_pbrute NUMERIC(14,3) NOT NULL DEFAULT 0,
	m_fe_valdev NUMERIC(16,2) NOT NULL DEFAULT 0,
	dossier_num TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS invoice_items (
	id              BIGSERIAL PRIMARY KEY,
	invoice_id      BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	position        INT NOT NULL,
	avecsanspaiment TEXT NOT NULL DEFAULT '',
	m_fl_ngp        TEXT NOT NULL DEFAULT '',
	m_fl_art        TEXT NOT NULL DEFAULT '',
	m_fl_desig      TEXT NOT NULL DEFAULT '',
	m_fl_orig       TEXT NOT NULL DEFAULT '',
	quantity        INT NOT NULL DEFAULT 1,
	m_fl_unite      TEXT NOT NULL DEFAULT '',
	m_fl_pnet       NUMERIC(14,3) NOT NULL DEFAULT 0,
	m_fl_pbrut      NUMERIC(14,3) NOT NULL DEFAULT 0,
	m_fl_valdev     NUMERIC(16,2) NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS invoices_dossier_idx ON invoices (dossier_num);
`

// EnsureSchema creates the invoice tables when missing.
func EnsureSchema(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
