package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/pkg/memory"
)

// defaultListLimit caps List when ListOpts.Limit is zero.
const defaultListLimit = 100

var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL-backed session journal. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool to the database at dsn, verifies it
// with a ping and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = `session_id, started_at, ended_at, outcome, failed_stage, failure_kind,
       failure_reason, transcript, reply, samples, sample_rate`

// Append implements [memory.Store].
func (s *Store) Append(ctx context.Context, rec memory.Record) error {
	const q = `
		INSERT INTO session_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO UPDATE SET
		    started_at     = EXCLUDED.started_at,
		    ended_at       = EXCLUDED.ended_at,
		    outcome        = EXCLUDED.outcome,
		    failed_stage   = EXCLUDED.failed_stage,
		    failure_kind   = EXCLUDED.failure_kind,
		    failure_reason = EXCLUDED.failure_reason,
		    transcript     = EXCLUDED.transcript,
		    reply          = EXCLUDED.reply,
		    samples        = EXCLUDED.samples,
		    sample_rate    = EXCLUDED.sample_rate`

	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.StartedAt,
		rec.EndedAt,
		rec.Outcome,
		rec.FailedStage,
		rec.FailureKind,
		rec.FailureReason,
		rec.Transcript,
		rec.Reply,
		int64(rec.Samples),
		rec.SampleRate,
	)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Get implements [memory.Store].
func (s *Store) Get(ctx context.Context, sessionID string) (memory.Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM session_records WHERE session_id = $1`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return memory.Record{}, fmt.Errorf("journal: get: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Record{}, memory.ErrNotFound
	}
	if err != nil {
		return memory.Record{}, fmt.Errorf("journal: get: %w", err)
	}
	return rec, nil
}

// List implements [memory.Store]. ListOpts.Query is passed to
// plainto_tsquery so no special operator syntax is required.
func (s *Store) List(ctx context.Context, opts memory.ListOpts) ([]memory.Record, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if opts.Outcome != "" {
		conditions = append(conditions, "outcome = "+next(opts.Outcome))
	}
	if opts.FailureKind != "" {
		conditions = append(conditions, "failure_kind = "+next(opts.FailureKind))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "started_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "started_at < "+next(opts.Before))
	}
	if opts.Query != "" {
		conditions = append(conditions,
			"to_tsvector('english', transcript || ' ' || reply) @@ plainto_tsquery('english', "+next(opts.Query)+")")
	}

	q := "SELECT " + recordColumns + "\nFROM   session_records\n"
	if len(conditions) > 0 {
		q += "WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q += "ORDER  BY started_at DESC\nLIMIT  " + next(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("journal: scan rows: %w", err)
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	return recs, nil
}

// scanRecord scans one session_records row selected with recordColumns.
func scanRecord(row pgx.CollectableRow) (memory.Record, error) {
	var (
		r       memory.Record
		samples int64
	)
	if err := row.Scan(
		&r.SessionID,
		&r.StartedAt,
		&r.EndedAt,
		&r.Outcome,
		&r.FailedStage,
		&r.FailureKind,
		&r.FailureReason,
		&r.Transcript,
		&r.Reply,
		&samples,
		&r.SampleRate,
	); err != nil {
		return memory.Record{}, err
	}
	r.Samples = int(samples)
	return r, nil
}
