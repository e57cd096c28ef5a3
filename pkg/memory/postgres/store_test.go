package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/memory/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if PARLEY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PARLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARLEY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS session_records CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_AppendGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Microsecond)
	want := memory.Record{
		SessionID:  "s-1",
		StartedAt:  started,
		EndedAt:    started.Add(4 * time.Second),
		Outcome:    memory.OutcomePlayed,
		Transcript: "hello",
		Reply:      "hi there",
		Samples:    22050,
		SampleRate: 22050,
	}
	if err := store.Append(ctx, want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Reply != want.Reply || got.Samples != want.Samples || !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestStore_AppendUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := memory.Record{SessionID: "s-1", StartedAt: now, EndedAt: now, Outcome: memory.OutcomeFailed, FailureKind: "transport"}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rec.Outcome = memory.OutcomePlayed
	rec.FailureKind = ""
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append again: %v", err)
	}

	all, err := store.List(ctx, memory.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].Outcome != memory.OutcomePlayed {
		t.Errorf("records = %+v", all)
	}
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for _, r := range []memory.Record{
		{SessionID: "a", StartedAt: base, Outcome: memory.OutcomePlayed, Transcript: "the dragon hoards treasure", Reply: "indeed"},
		{SessionID: "b", StartedAt: base.Add(time.Minute), Outcome: memory.OutcomeFailed, FailureKind: "transport"},
		{SessionID: "c", StartedAt: base.Add(2 * time.Minute), Outcome: memory.OutcomeFailed, FailureKind: "parse"},
	} {
		r.EndedAt = r.StartedAt.Add(time.Second)
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append %s: %v", r.SessionID, err)
		}
	}

	tests := []struct {
		name string
		opts memory.ListOpts
		want []string
	}{
		{name: "newest first", opts: memory.ListOpts{}, want: []string{"c", "b", "a"}},
		{name: "limit", opts: memory.ListOpts{Limit: 2}, want: []string{"c", "b"}},
		{name: "outcome", opts: memory.ListOpts{Outcome: memory.OutcomeFailed}, want: []string{"c", "b"}},
		{name: "kind", opts: memory.ListOpts{FailureKind: "parse"}, want: []string{"c"}},
		{name: "after", opts: memory.ListOpts{After: base.Add(30 * time.Second)}, want: []string{"c", "b"}},
		{name: "full text", opts: memory.ListOpts{Query: "dragon treasure"}, want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].SessionID != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i].SessionID, tt.want[i])
				}
			}
		})
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	_ = newTestStore(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}
