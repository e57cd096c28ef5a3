package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] answered,
// either because it failed or because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for every member's breaker. Its Name is
	// replaced by the member name.
	CircuitBreaker CircuitBreakerConfig

	// OnFailover, if set, is called when a member other than the first
	// answers a call. skipped names the members tried or skipped before it.
	OnFailover func(answered string, skipped []string)
}

type member[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// FallbackGroup holds backends of one provider type in order of preference,
// each behind its own [CircuitBreaker].
//
// Members must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose preferred member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends backend as the least preferred member.
func (g *FallbackGroup[T]) AddFallback(name string, backend T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.members = append(g.members, member[T]{name: name, backend: backend, breaker: NewCircuitBreaker(bc)})
}

// Len returns the number of members, primary included.
func (g *FallbackGroup[T]) Len() int {
	return len(g.members)
}

// Breakers returns every member's breaker in order of preference.
func (g *FallbackGroup[T]) Breakers() []*CircuitBreaker {
	out := make([]*CircuitBreaker, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.breaker)
	}
	return out
}

// Execute is [ExecuteWithResult] for calls without a result.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, g, func(backend T) (struct{}, error) {
		return struct{}{}, fn(backend)
	})
	return err
}

// ExecuteWithResult calls fn on each member in order of preference until one
// succeeds, skipping members whose breaker is open. Once ctx is done no
// further member is tried and the error of the interrupted call is returned.
//
// When no member answers, the error matches [ErrAllFailed] and the most
// recent member error, so callers can still classify the cause.
func ExecuteWithResult[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		cause   error
		skipped []string
	)
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var result R
		err := m.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(m.backend)
			return callErr
		})
		switch {
		case err == nil:
			if len(skipped) > 0 && g.cfg.OnFailover != nil {
				g.cfg.OnFailover(m.name, skipped)
			}
			return result, nil
		case ctx.Err() != nil:
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
			if cause == nil {
				cause = err
			}
		default:
			slog.Warn("provider failed", "provider", m.name, "remaining", len(g.members)-len(skipped)-1, "error", err)
			cause = err
		}
		skipped = append(skipped, m.name)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, cause)
}
