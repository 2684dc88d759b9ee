package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/ports"
)

type breakerTransition struct {
	operation string
	from      string
	to        string
}

// transitionForwarder decouples breaker state listeners from event
// publishing. gobreaker invokes OnStateChange while holding the breaker
// mutex, so the listener must return immediately; delivery happens on a
// drain goroutine with its own timeout budget.
type transitionForwarder struct {
	events         chan breakerTransition
	done           chan struct{}
	publishTimeout time.Duration
}

func newTransitionForwarder(buffer int, publishTimeout time.Duration) *transitionForwarder {
	if buffer <= 0 {
		buffer = 64
	}
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	return &transitionForwarder{
		events:         make(chan breakerTransition, buffer),
		done:           make(chan struct{}),
		publishTimeout: publishTimeout,
	}
}

// Offer never blocks. On a full buffer the event is dropped; logs and
// metrics already carry every transition.
func (f *transitionForwarder) Offer(operation, from, to string) {
	select {
	case f.events <- breakerTransition{operation: operation, from: from, to: to}:
	default:
		slog.Warn("breaker_event_dropped", "operation", operation, "from", from, "to", to)
	}
}

// Start begins draining into publisher. Events offered before Start wait
// in the buffer, so listeners may fire as soon as the forwarder exists.
func (f *transitionForwarder) Start(publisher ports.EventPublisher) {
	go func() {
		defer close(f.done)
		for ev := range f.events {
			publishCtx, cancel := context.WithTimeout(context.Background(), f.publishTimeout)
			if err := publisher.PublishBreakerTransition(publishCtx, ev.operation, ev.from, ev.to); err != nil {
				slog.Warn("breaker_event_publish_failed", "operation", ev.operation, "error", err)
			}
			cancel()
		}
	}()
}

// Close flushes buffered events and stops the drain goroutine. Call only
// after Start.
func (f *transitionForwarder) Close() {
	close(f.events)
	<-f.done
}
