package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// TransitionListener observes circuit breaker state changes.
type TransitionListener func(operation, from, to string)

// Chain composes retry, circuit breaker, bulkhead and per-attempt timeout
// around a call to an external dependency, outermost to innermost in that
// order: an open breaker rejects a retry attempt before it consumes a
// bulkhead slot or starts a timer.
type Chain struct {
	cfg       Config
	bulkhead  *Bulkhead
	listeners []TransitionListener

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewChain(cfg Config, listeners ...TransitionListener) *Chain {
	cfg = cfg.normalize()
	return &Chain{
		cfg:       cfg,
		bulkhead:  NewBulkhead(cfg.BulkheadMaxActive, cfg.BulkheadMaxQueued),
		listeners: listeners,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (c *Chain) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	delay := c.cfg.RetryInitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := c.attempt(ctx, op, fn, classifier)
		if err == nil {
			return nil
		}

		// Terminal kinds are never retried: retrying an open breaker or a
		// saturated bulkhead only adds load, and a timed-out attempt has
		// already consumed the caller's latency budget.
		if kind, ok := domain.ResilienceKindOf(err); ok {
			switch kind {
			case domain.KindCircuitOpen, domain.KindBulkheadFull, domain.KindTimeout:
				return err
			}
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		class := classifier(err)
		if !class.Retryable {
			return err
		}
		lastErr = err
		if attempt == c.cfg.RetryMaxAttempts {
			break
		}

		wait := delay
		if wait > c.cfg.RetryMaxDelay {
			wait = c.cfg.RetryMaxDelay
		}
		slog.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", c.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * c.cfg.RetryMultiplier)
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
	}

	return &domain.ResilienceError{Kind: domain.KindRetriesExhausted, Operation: op, Err: lastErr}
}

func (c *Chain) attempt(
	ctx context.Context,
	op string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	breaker := c.circuitBreaker(op, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, c.admitAndRun(ctx, op, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ResilienceError{Kind: domain.KindCircuitOpen, Operation: op, Err: err}
	}
	return err
}

func (c *Chain) admitAndRun(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		if errors.Is(err, errBulkheadSaturated) {
			return &domain.ResilienceError{Kind: domain.KindBulkheadFull, Operation: op, Err: err}
		}
		return err
	}
	defer c.bulkhead.Release()

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutPerAttempt)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &domain.ResilienceError{Kind: domain.KindTimeout, Operation: op, Err: err}
	}
	return err
}

func (c *Chain) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if breaker, ok := c.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name: operation,
		// Exactly one trial request while half-open.
		MaxRequests: 1,
		Interval:    c.cfg.BreakerSamplingWindow,
		Timeout:     c.cfg.BreakerHalfOpenAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < c.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= c.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if kind, ok := domain.ResilienceKindOf(err); ok {
				switch kind {
				case domain.KindBulkheadFull:
					// Local saturation, not a dependency failure.
					return true
				case domain.KindTimeout:
					return false
				}
			}
			if errors.Is(err, context.Canceled) {
				return true
			}
			return !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change",
				"operation", name,
				"from", from.String(),
				"to", to.String(),
			)
			for _, listener := range c.listeners {
				listener(name, from.String(), to.String())
			}
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	c.breakers[operation] = breaker
	return breaker
}

// Reset discards all breaker state. Administrative use only.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakers = make(map[string]*gobreaker.CircuitBreaker[any])
}

func (c *Chain) BulkheadActive() int {
	return c.bulkhead.Active()
}

func (c *Chain) BulkheadQueued() int {
	return c.bulkhead.Queued()
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
