package memory

import (
	"context"
	"sync"
)

// DefaultRingCapacity is the number of records a [Ring] keeps when created
// with a non-positive capacity.
const DefaultRingCapacity = 256

var _ Store = (*Ring)(nil)

// Ring is an in-memory [Store] holding the most recent records. When full,
// appending evicts the oldest record.
type Ring struct {
	mu    sync.Mutex
	buf   []Record
	next  int
	count int
}

// NewRing returns a Ring holding up to capacity records.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]Record, capacity)}
}

// Append implements [Store].
func (r *Ring) Append(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.indexOf(rec.SessionID); ok {
		r.buf[i] = rec
		return nil
	}
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	return nil
}

// Get implements [Store].
func (r *Ring) Get(_ context.Context, sessionID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.indexOf(sessionID); ok {
		return r.buf[i], nil
	}
	return Record{}, ErrNotFound
}

// List implements [Store].
func (r *Ring) List(_ context.Context, opts ListOpts) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Record{}
	for k := 1; k <= r.count; k++ {
		rec := r.buf[(r.next-k+len(r.buf))%len(r.buf)]
		if !opts.Match(rec) {
			continue
		}
		out = append(out, rec)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of records held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// indexOf finds sessionID among the held records. Must be called with r.mu held.
func (r *Ring) indexOf(sessionID string) (int, bool) {
	for k := 1; k <= r.count; k++ {
		i := (r.next - k + len(r.buf)) % len(r.buf)
		if r.buf[i].SessionID == sessionID {
			return i, true
		}
	}
	return 0, false
}
