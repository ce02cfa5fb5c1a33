package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Guarded bounds every ledger call with a timeout and trips a circuit
// breaker after repeated failures so callers can fail open quickly.
type Guarded struct {
	inner   Ledger
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	onError func(op string)
}

func NewGuarded(inner Ledger, timeout time.Duration, logger *zap.Logger) *Guarded {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	g := &Guarded{inner: inner, timeout: timeout, logger: logger}
	settings := gobreaker.Settings{
		Name:     "ledger",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.25
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ledger breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	g.breaker = gobreaker.NewCircuitBreaker(settings)
	return g
}

// OnError registers a hook invoked with the operation name on every failure.
// Register it before the ledger is used concurrently.
func (g *Guarded) OnError(fn func(op string)) {
	g.onError = fn
}

func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

func (g *Guarded) GetUserBalance(ctx context.Context, userID string) (Balance, error) {
	return call(g, ctx, "balance", func(ctx context.Context) (Balance, error) {
		return g.inner.GetUserBalance(ctx, userID)
	})
}

func (g *Guarded) GetUserStats(ctx context.Context, userID string) (Stats, error) {
	return call(g, ctx, "stats", func(ctx context.Context) (Stats, error) {
		return g.inner.GetUserStats(ctx, userID)
	})
}

func (g *Guarded) WealthDistribution(ctx context.Context, exclusion Exclusion) ([]int64, error) {
	return call(g, ctx, "wealth_distribution", func(ctx context.Context) ([]int64, error) {
		return g.inner.WealthDistribution(ctx, exclusion)
	})
}

func (g *Guarded) WagerTotals(ctx context.Context, exclusion Exclusion) (Totals, error) {
	return call(g, ctx, "wager_totals", func(ctx context.Context) (Totals, error) {
		return g.inner.WagerTotals(ctx, exclusion)
	})
}

func call[T any](g *Guarded, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		if g.onError != nil {
			g.onError(op)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	return result.(T), nil
}
