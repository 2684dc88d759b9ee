package resilience

import "time"

type Config struct {
	TimeoutPerAttempt time.Duration

	BulkheadMaxActive int
	BulkheadMaxQueued int

	BreakerFailureRatio   float64
	BreakerSamplingWindow time.Duration
	BreakerMinRequests    uint32
	BreakerHalfOpenAfter  time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
}

func DefaultConfig() Config {
	return Config{
		TimeoutPerAttempt: 30 * time.Second,

		BulkheadMaxActive: 10,
		BulkheadMaxQueued: 5,

		BreakerFailureRatio:   0.5,
		BreakerSamplingWindow: 20 * time.Second,
		BreakerMinRequests:    20,
		BreakerHalfOpenAfter:  10 * time.Second,

		RetryMaxAttempts:  3,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     5000 * time.Millisecond,
		RetryMultiplier:   2.0,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.TimeoutPerAttempt <= 0 {
		out.TimeoutPerAttempt = def.TimeoutPerAttempt
	}
	if out.BulkheadMaxActive <= 0 {
		out.BulkheadMaxActive = def.BulkheadMaxActive
	}
	if out.BulkheadMaxQueued < 0 {
		out.BulkheadMaxQueued = def.BulkheadMaxQueued
	}

	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerSamplingWindow <= 0 {
		out.BreakerSamplingWindow = def.BreakerSamplingWindow
	}
	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerHalfOpenAfter <= 0 {
		out.BreakerHalfOpenAfter = def.BreakerHalfOpenAfter
	}

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialDelay <= 0 {
		out.RetryInitialDelay = def.RetryInitialDelay
	}
	if out.RetryMaxDelay < out.RetryInitialDelay {
		out.RetryMaxDelay = out.RetryInitialDelay
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	return out
}
