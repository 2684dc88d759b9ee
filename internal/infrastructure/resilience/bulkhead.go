package resilience

import (
	"context"
	"errors"
)

var errBulkheadSaturated = errors.New("bulkhead saturated")

// Bulkhead caps concurrent executions and bounds the wait queue. A
// request that would exceed both is rejected immediately, never queued
// past the bound and never blocked indefinitely.
type Bulkhead struct {
	active chan struct{}
	queue  chan struct{}
}

func NewBulkhead(maxActive, maxQueued int) *Bulkhead {
	if maxActive <= 0 {
		maxActive = 1
	}
	if maxQueued < 0 {
		maxQueued = 0
	}
	return &Bulkhead{
		active: make(chan struct{}, maxActive),
		queue:  make(chan struct{}, maxQueued),
	}
}

// Acquire admits the caller or fails fast with errBulkheadSaturated.
// A queued caller waits for an active slot only as long as ctx allows.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.active <- struct{}{}:
		return nil
	default:
	}

	select {
	case b.queue <- struct{}{}:
	default:
		return errBulkheadSaturated
	}
	defer func() { <-b.queue }()

	select {
	case b.active <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bulkhead) Release() {
	<-b.active
}

func (b *Bulkhead) Active() int {
	return len(b.active)
}

func (b *Bulkhead) Queued() int {
	return len(b.queue)
}
