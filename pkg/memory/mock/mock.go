// Package mock provides a test double for the memory.Store interface.
//
// The mock records every call and exposes exported fields that control what
// it returns. It is safe for concurrent use.
//
// Typical usage:
//
//	store := &mock.Store{}
//	// inject store into the system under test …
//	if got := len(store.Appended()); got != 1 {
//	    t.Errorf("expected 1 record, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/memory"
)

// Store is a configurable test double for [memory.Store]. Appended records
// are kept and served by Get and List unless the corresponding *Err field
// is set.
type Store struct {
	mu    sync.Mutex
	recs  []memory.Record
	lists []memory.ListOpts

	// AppendErr is returned by Append when non-nil.
	AppendErr error

	// GetErr is returned by Get when non-nil.
	GetErr error

	// ListErr is returned by List when non-nil.
	ListErr error

	notify chan struct{}
}

var _ memory.Store = (*Store)(nil)

// Append implements [memory.Store].
func (s *Store) Append(_ context.Context, rec memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.recs = append(s.recs, rec)
	if s.notify != nil {
		close(s.notify)
		s.notify = nil
	}
	return nil
}

// Get implements [memory.Store].
func (s *Store) Get(_ context.Context, sessionID string) (memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return memory.Record{}, s.GetErr
	}
	for i := len(s.recs) - 1; i >= 0; i-- {
		if s.recs[i].SessionID == sessionID {
			return s.recs[i], nil
		}
	}
	return memory.Record{}, memory.ErrNotFound
}

// List implements [memory.Store]. Filters are applied with ListOpts.Match.
func (s *Store) List(_ context.Context, opts memory.ListOpts) ([]memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, opts)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := []memory.Record{}
	for i := len(s.recs) - 1; i >= 0; i-- {
		if opts.Match(s.recs[i]) {
			out = append(out, s.recs[i])
		}
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Appended returns a copy of every appended record in call order.
func (s *Store) Appended() []memory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.Record(nil), s.recs...)
}

// ListCalls returns the options of every List call.
func (s *Store) ListCalls() []memory.ListOpts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.ListOpts(nil), s.lists...)
}

// WaitAppended blocks until at least n records were appended or timeout
// elapses. It reports whether the count was reached.
func (s *Store) WaitAppended(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		if len(s.recs) >= n {
			s.mu.Unlock()
			return true
		}
		if s.notify == nil {
			s.notify = make(chan struct{})
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
}
