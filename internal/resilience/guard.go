// Package resilience wraps outbound collaborator calls with a per-call
// timeout, a local rate limiter and a circuit breaker. Calls are never retried.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"debtbot/internal/observability"
)

var (
	ErrCircuitOpen = errors.New("circuit open")
	ErrRateLimited = errors.New("local rate limit wait failed")
)

type Config struct {
	Name string
	// CallTimeout bounds each call. Zero means no extra deadline.
	CallTimeout time.Duration
	// RPS <= 0 disables the limiter.
	RPS   float64
	Burst int
	// MaxFailures consecutive failures open the breaker; zero disables it.
	MaxFailures uint32
	OpenTimeout time.Duration
}

type Guard struct {
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func New(cfg Config) *Guard {
	g := &Guard{name: cfg.Name, timeout: cfg.CallTimeout}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	if cfg.MaxFailures > 0 {
		maxFailures := cfg.MaxFailures
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= maxFailures },
			// A caller giving up is not a collaborator failure.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return g
}

// Do runs fn once. A nil Guard runs fn directly.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			observability.CollaboratorCalls.WithLabelValues(g.name, "rate_limited_local").Inc()
			return fmt.Errorf("%s: %w: %v", g.name, ErrRateLimited, err)
		}
	}

	call := func() (any, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		start := time.Now()
		err := fn(callCtx)
		observability.CollaboratorLatency.WithLabelValues(g.name).Observe(time.Since(start).Seconds())
		return nil, err
	}

	var err error
	if g.breaker == nil {
		_, err = call()
	} else {
		_, err = g.breaker.Execute(call)
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.CollaboratorCalls.WithLabelValues(g.name, "cb_open").Inc()
		return fmt.Errorf("%s: %w", g.name, ErrCircuitOpen)
	case err != nil:
		observability.CollaboratorCalls.WithLabelValues(g.name, "error").Inc()
		return err
	}
	observability.CollaboratorCalls.WithLabelValues(g.name, "ok").Inc()
	return nil
}
