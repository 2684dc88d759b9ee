package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

func retryableClassifier(err error) ErrorClassification {
	return ErrorClassification{Retryable: err != nil, RecordFailure: true}
}

func testConfig() Config {
	return Config{
		TimeoutPerAttempt:     time.Second,
		BulkheadMaxActive:     4,
		BulkheadMaxQueued:     2,
		BreakerFailureRatio:   0.5,
		BreakerSamplingWindow: time.Second,
		BreakerMinRequests:    100,
		BreakerHalfOpenAfter:  50 * time.Millisecond,
		RetryMaxAttempts:      3,
		RetryInitialDelay:     time.Millisecond,
		RetryMaxDelay:         2 * time.Millisecond,
		RetryMultiplier:       2,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	chain := NewChain(testConfig())

	attempts := 0
	errTemp := errors.New("temporary")
	err := chain.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, retryableClassifier)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	chain := NewChain(testConfig())

	attempts := 0
	errPermanent := errors.New("permanent")
	err := chain.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteSurfacesRetriesExhausted(t *testing.T) {
	chain := NewChain(testConfig())

	attempts := 0
	errTemp := errors.New("still failing")
	err := chain.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errTemp
	}, retryableClassifier)

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if !domain.IsResilienceKind(err, domain.KindRetriesExhausted) {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %v", err)
	}
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected last error as cause, got %v", err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 2
	chain := NewChain(cfg)

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := chain.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := chain.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !domain.IsResilienceKind(err, domain.KindCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestExecuteHalfOpenTrialClosesCircuit(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 2
	cfg.BreakerHalfOpenAfter = 20 * time.Millisecond

	var transitions []string
	chain := NewChain(cfg, func(_, from, to string) {
		transitions = append(transitions, from+">"+to)
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		_ = chain.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
	}
	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return nil
	}, classifier); !domain.IsResilienceKind(err, domain.KindCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return nil
	}, classifier); err != nil {
		t.Fatalf("expected half-open trial to succeed, got %v", err)
	}
	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return nil
	}, classifier); err != nil {
		t.Fatalf("expected closed circuit after trial success, got %v", err)
	}

	want := map[string]bool{"closed>open": false, "open>half-open": false, "half-open>closed": false}
	for _, tr := range transitions {
		if _, ok := want[tr]; ok {
			want[tr] = true
		}
	}
	for tr, seen := range want {
		if !seen {
			t.Fatalf("missing breaker transition %s, saw %v", tr, transitions)
		}
	}
}

func TestExecuteHalfOpenFailureReopensCircuit(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 2
	cfg.BreakerHalfOpenAfter = 20 * time.Millisecond
	chain := NewChain(cfg)

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		_ = chain.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
	}

	time.Sleep(30 * time.Millisecond)

	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return errTemp
	}, classifier); !errors.Is(err, errTemp) {
		t.Fatalf("expected trial failure to surface, got %v", err)
	}
	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return nil
	}, classifier); !domain.IsResilienceKind(err, domain.KindCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestExecuteTimeoutIsNotRetried(t *testing.T) {
	cfg := testConfig()
	cfg.TimeoutPerAttempt = 20 * time.Millisecond
	chain := NewChain(cfg)

	attempts := 0
	start := time.Now()
	err := chain.Execute(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	}, retryableClassifier)

	if !domain.IsResilienceKind(err, domain.KindTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("timed-out attempt must not be retried, got %d attempts", attempts)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("timeout surfaced too late: %v", elapsed)
	}
}

func TestExecutePropagatesCallerCancellation(t *testing.T) {
	chain := NewChain(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		errs <- chain.Execute(ctx, "op", func(taskCtx context.Context) error {
			close(started)
			<-taskCtx.Done()
			return taskCtx.Err()
		}, retryableClassifier)
	}()

	<-started
	cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancellation did not propagate")
	}
}

func TestResetClearsBreakerState(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 2
	chain := NewChain(cfg)

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
	for i := 0; i < 2; i++ {
		_ = chain.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
	}
	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return nil
	}, classifier); !domain.IsResilienceKind(err, domain.KindCircuitOpen) {
		t.Fatalf("expected open circuit before reset, got %v", err)
	}

	chain.Reset()

	if err := chain.Execute(context.Background(), "op", func(context.Context) error {
		return nil
	}, classifier); err != nil {
		t.Fatalf("expected closed circuit after reset, got %v", err)
	}
}
