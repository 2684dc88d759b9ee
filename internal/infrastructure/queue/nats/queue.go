package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/resilience"
)

// Queue publishes circuit breaker transitions and consumes corpus change
// events that trigger tenant cache invalidation.
type Queue struct {
	conn           *nats.Conn
	breakerSubject string
	corpusSubject  string
	chain          *resilience.Chain
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Chain                *resilience.Chain
}

func New(url, breakerSubject, corpusSubject string) (*Queue, error) {
	return NewWithOptions(url, breakerSubject, corpusSubject, Options{})
}

func NewWithOptions(url, breakerSubject, corpusSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("abd-retrieval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		breakerSubject: breakerSubject,
		corpusSubject:  corpusSubject,
		chain:          options.Chain,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

type breakerEvent struct {
	Operation string    `json:"operation"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

func (q *Queue) PublishBreakerTransition(ctx context.Context, operation, from, to string) error {
	payload, err := json.Marshal(breakerEvent{
		Operation: operation,
		From:      from,
		To:        to,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal breaker event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.breakerSubject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.chain != nil {
		err = q.chain.Execute(ctx, "nats_publish_breaker_event", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

type corpusEvent struct {
	TenantID string `json:"tenant_id"`
	SourceID string `json:"source_id,omitempty"`
}

// SubscribeCorpusUpdated blocks until ctx is cancelled, invoking handler
// with the tenant of every corpus change. Handler failures are logged and
// the subscription keeps going.
func (q *Queue) SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.corpusSubject, "cache-invalidators", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var event corpusEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("corpus_event_malformed", "error", err)
			return
		}
		if event.TenantID == "" {
			slog.Warn("corpus_event_missing_tenant")
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event.TenantID); err != nil {
			slog.Warn("corpus_event_handler_failed", "tenant_id", event.TenantID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
