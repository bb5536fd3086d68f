package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS keyword_outcomes (
	id             BIGSERIAL PRIMARY KEY,
	session_id     TEXT NOT NULL,
	keyword        TEXT NOT NULL,
	searched       INTEGER NOT NULL,
	passed         INTEGER NOT NULL,
	matches        INTEGER NOT NULL,
	score          DOUBLE PRECISION NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	filter_reasons JSONB NOT NULL DEFAULT '{}',
	started_at     TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS keyword_outcomes_keyword_idx ON keyword_outcomes (keyword);

CREATE TABLE IF NOT EXISTS matched_products (
	outcome_id       BIGINT NOT NULL REFERENCES keyword_outcomes (id) ON DELETE CASCADE,
	product_id       TEXT NOT NULL,
	title            TEXT NOT NULL,
	price            INTEGER NOT NULL,
	product_url      TEXT NOT NULL,
	source_url       TEXT NOT NULL,
	source_price_cny DOUBLE PRECISION NOT NULL,
	profit           INTEGER NOT NULL,
	margin           DOUBLE PRECISION NOT NULL,
	combined         DOUBLE PRECISION NOT NULL,
	match_path       TEXT NOT NULL,
	duplicate        BOOLEAN NOT NULL,
	PRIMARY KEY (outcome_id, product_id)
);
`

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the outcome tables when they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
