// Package postgres provides a PostgreSQL-backed session journal implementing
// [memory.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, rec)
//	recent, _ := store.List(ctx, memory.ListOpts{Limit: 20})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL: session journal
// ─────────────────────────────────────────────────────────────────────────────

const ddlSessionRecords = `
CREATE TABLE IF NOT EXISTS session_records (
    session_id     TEXT         PRIMARY KEY,
    started_at     TIMESTAMPTZ  NOT NULL,
    ended_at       TIMESTAMPTZ  NOT NULL,
    outcome        TEXT         NOT NULL,
    failed_stage   TEXT         NOT NULL DEFAULT '',
    failure_kind   TEXT         NOT NULL DEFAULT '',
    failure_reason TEXT         NOT NULL DEFAULT '',
    transcript     TEXT         NOT NULL DEFAULT '',
    reply          TEXT         NOT NULL DEFAULT '',
    samples        BIGINT       NOT NULL DEFAULT 0,
    sample_rate    INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_session_records_started_at
    ON session_records (started_at DESC);

CREATE INDEX IF NOT EXISTS idx_session_records_outcome_kind
    ON session_records (outcome, failure_kind);

CREATE INDEX IF NOT EXISTS idx_session_records_fts
    ON session_records USING GIN (to_tsvector('english', transcript || ' ' || reply));
`

// Migrate creates or ensures the journal table and its indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessionRecords); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
