package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/ajabadia/ABDElevators-sub012/internal/config"
	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
	"github.com/ajabadia/ABDElevators-sub012/internal/core/ports"
	"github.com/ajabadia/ABDElevators-sub012/internal/core/usecase"
	auditpg "github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/audit/postgres"
	rediscache "github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/cache/redis"
	graphneo4j "github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/graph/neo4j"
	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/llm/ollama"
	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/queue/nats"
	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/resilience"
	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/vector/qdrant"
	"github.com/ajabadia/ABDElevators-sub012/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.RetrievalMetrics

	Retrieval    ports.RetrievalService
	CacheAdmin   ports.CacheAdmin
	BreakerAdmin ports.BreakerAdmin

	queue *nats.Queue
	cache *rediscache.Cache

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	m := metrics.NewRetrievalMetrics(cfg.ServiceName)

	// gobreaker fires this listener under the breaker mutex; it must
	// only count and enqueue, never publish inline.
	forwarder := newTransitionForwarder(64, 2*time.Second)
	chain := resilience.NewChain(resilienceConfig(cfg), func(operation, from, to string) {
		m.RecordBreakerTransition(cfg.ServiceName, operation, to)
		forwarder.Offer(operation, from, to)
	})
	m.RegisterBulkhead(cfg.ServiceName, chain.BulkheadActive, chain.BulkheadQueued)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := rediscache.New(redisClient, time.Duration(cfg.CacheOpTimeoutMillis)*time.Millisecond)

	db, err := auditpg.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sink := auditpg.NewSink(db, cfg.AuditBufferSize)
	if err := sink.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	// Breaker events bypass the chain: they flow exactly when the
	// provider is unhealthy and must not compete for bulkhead slots.
	queue, err := nats.New(cfg.NATSURL, cfg.NATSBreakerSubject, cfg.NATSCorpusSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	forwarder.Start(queue)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	var expander ports.QueryExpander
	if cfg.ExpansionEnabled {
		expander = ollama.NewExpander(ollamaClient, chain)
	}

	qdrantClient := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	driver, err := neo4jdriver.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4jdriver.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}

	backends := []ports.SearchBackend{
		instrument(qdrant.NewVectorBackend(qdrantClient, embedder, chain), m, cfg.ServiceName),
		instrument(qdrant.NewKeywordBackend(qdrantClient, chain), m, cfg.ServiceName),
		instrument(graphneo4j.NewBackend(driver, cfg.Neo4jDatabase, chain), m, cfg.ServiceName),
	}

	retrieveUC := usecase.NewRetrieveUseCase(backends, expander, cache, sink, usecase.RetrieveConfig{
		CacheTTL:        time.Duration(cfg.CacheTTLSeconds) * time.Second,
		DefaultLimit:    cfg.RetrievalTopK,
		CandidateLimit:  cfg.RetrievalCandidates,
		DefaultMinScore: cfg.RetrievalMinScore,
	})

	return &App{
		Config:  cfg,
		Metrics: m,

		Retrieval:    retrieveUC,
		CacheAdmin:   cache,
		BreakerAdmin: chain,

		queue: queue,
		cache: cache,

		closeFn: func() {
			forwarder.Close()
			queue.Close()
			sink.Close()
			_ = db.Close()
			_ = redisClient.Close()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = driver.Close(closeCtx)
		},
	}, nil
}

// RunInvalidationSubscriber consumes corpus change events and purges the
// affected tenant's cache. Blocks until ctx is cancelled.
func (a *App) RunInvalidationSubscriber(ctx context.Context) error {
	return a.queue.SubscribeCorpusUpdated(ctx, func(ctx context.Context, tenantID string) error {
		slog.Info("corpus_updated", "tenant_id", tenantID)
		return a.cache.InvalidateTenant(ctx, tenantID)
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		TimeoutPerAttempt:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		BulkheadMaxActive:     cfg.BulkheadMaxActive,
		BulkheadMaxQueued:     cfg.BulkheadMaxQueued,
		BreakerFailureRatio:   cfg.BreakerFailureRatio,
		BreakerSamplingWindow: time.Duration(cfg.BreakerSamplingWindowSeconds) * time.Second,
		BreakerMinRequests:    uint32(cfg.BreakerMinRequests),
		BreakerHalfOpenAfter:  time.Duration(cfg.BreakerHalfOpenAfterSeconds) * time.Second,
		RetryMaxAttempts:      cfg.RetryMaxAttempts,
		RetryInitialDelay:     time.Duration(cfg.RetryInitialDelayMillis) * time.Millisecond,
		RetryMaxDelay:         time.Duration(cfg.RetryMaxDelayMillis) * time.Millisecond,
		RetryMultiplier:       cfg.RetryMultiplier,
	}
}

type instrumentedBackend struct {
	inner   ports.SearchBackend
	m       *metrics.RetrievalMetrics
	service string
}

func instrument(inner ports.SearchBackend, m *metrics.RetrievalMetrics, service string) ports.SearchBackend {
	return &instrumentedBackend{inner: inner, m: m, service: service}
}

func (b *instrumentedBackend) Origin() domain.Origin {
	return b.inner.Origin()
}

func (b *instrumentedBackend) Search(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievalResult, error) {
	results, err := b.inner.Search(ctx, tenantID, query, limit)
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.m.RecordBackendRequest(b.service, string(b.inner.Origin()), status)
	return results, err
}
