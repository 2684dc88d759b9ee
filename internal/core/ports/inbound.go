package ports

import (
	"context"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

// RetrievalService is the inbound contract for hybrid document retrieval.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, tctx domain.TenantContext, opts domain.RetrievalOptions) (*domain.RetrievalResponse, error)
}

// CacheAdmin covers privileged cache operations outside the hot path.
type CacheAdmin interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// BreakerAdmin resets circuit breaker state. Privileged, not part of the
// hot path; the only external actor allowed to force a transition.
type BreakerAdmin interface {
	Reset()
}
