package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/memory"
)

func rec(id string, started time.Time, outcome string) memory.Record {
	return memory.Record{SessionID: id, StartedAt: started, EndedAt: started.Add(time.Second), Outcome: outcome}
}

func TestRing_NewestFirstAndEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := memory.NewRing(3)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		if err := r.Append(ctx, rec(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute), memory.OutcomePlayed)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := r.List(ctx, memory.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, g := range got {
		ids = append(ids, g.SessionID)
	}
	if fmt.Sprint(ids) != "[s4 s3 s2]" {
		t.Errorf("ids = %v, want [s4 s3 s2]", ids)
	}
	if _, err := r.Get(ctx, "s0"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get evicted = %v, want ErrNotFound", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
}

func TestRing_AppendReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := memory.NewRing(0)
	now := time.Now()
	_ = r.Append(ctx, rec("a", now, memory.OutcomeFailed))
	updated := rec("a", now, memory.OutcomePlayed)
	updated.Reply = "hi there"
	_ = r.Append(ctx, updated)

	got, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Outcome != memory.OutcomePlayed || got.Reply != "hi there" {
		t.Errorf("record = %+v", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRing_ListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := memory.NewRing(10)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	played := rec("played", base, memory.OutcomePlayed)
	played.Transcript = "Hello there"
	played.Reply = "General Kenobi"
	failed := rec("failed", base.Add(time.Minute), memory.OutcomeFailed)
	failed.FailureKind = "transport"
	parse := rec("parse", base.Add(2*time.Minute), memory.OutcomeFailed)
	parse.FailureKind = "parse"
	for _, x := range []memory.Record{played, failed, parse} {
		_ = r.Append(ctx, x)
	}

	tests := []struct {
		name string
		opts memory.ListOpts
		want []string
	}{
		{name: "all", opts: memory.ListOpts{}, want: []string{"parse", "failed", "played"}},
		{name: "limit", opts: memory.ListOpts{Limit: 1}, want: []string{"parse"}},
		{name: "outcome", opts: memory.ListOpts{Outcome: memory.OutcomeFailed}, want: []string{"parse", "failed"}},
		{name: "kind", opts: memory.ListOpts{FailureKind: "transport"}, want: []string{"failed"}},
		{name: "after", opts: memory.ListOpts{After: base}, want: []string{"parse", "failed"}},
		{name: "before", opts: memory.ListOpts{Before: base.Add(time.Minute)}, want: []string{"played"}},
		{name: "query both fields", opts: memory.ListOpts{Query: "hello KENOBI"}, want: []string{"played"}},
		{name: "query miss", opts: memory.ListOpts{Query: "dragon"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.List(ctx, tt.opts)
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

func TestRecord_Duration(t *testing.T) {
	t.Parallel()
	now := time.Now()
	r := memory.Record{StartedAt: now, EndedAt: now.Add(1500 * time.Millisecond)}
	if r.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration = %v", r.Duration())
	}
}
