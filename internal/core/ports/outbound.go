package ports

import (
	"context"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

// SearchBackend is one pluggable retrieval strategy. Every implementation
// must filter by tenant server-side; the orchestrator never relies on
// post-hoc filtering of mixed-tenant results.
type SearchBackend interface {
	Origin() domain.Origin
	Search(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievalResult, error)
}

// QueryExpander enriches a raw query through the external AI provider.
// Implementations go through the resilience chain; callers treat failure
// as a degradation, not an abort.
type QueryExpander interface {
	ExpandQuery(ctx context.Context, tenantID, query string) (string, error)
}

// ResultCache maps (tenant, normalized query, environment) to a stored
// result set. Store/lookup failures degrade to a miss and are never
// surfaced: the cache is an optimization, not a correctness dependency.
type ResultCache interface {
	Lookup(ctx context.Context, tctx domain.TenantContext, query string) (*domain.CacheEntry, bool)
	Store(ctx context.Context, tctx domain.TenantContext, query string, entry domain.CacheEntry)
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// AuditSink records observability events without ever blocking the
// request path.
type AuditSink interface {
	Record(rec domain.AuditRecord)
}

// EventPublisher broadcasts breaker transitions for operational alerting.
type EventPublisher interface {
	PublishBreakerTransition(ctx context.Context, operation, from, to string) error
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
