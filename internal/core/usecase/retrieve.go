package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
	"github.com/ajabadia/ABDElevators-sub012/internal/core/ports"
)

type RetrieveConfig struct {
	CacheTTL        time.Duration
	DefaultLimit    int
	CandidateLimit  int
	DefaultMinScore float64
}

func (c RetrieveConfig) normalize() RetrieveConfig {
	out := c
	if out.CacheTTL <= 0 {
		out.CacheTTL = 30 * time.Minute
	}
	if out.DefaultLimit <= 0 {
		out.DefaultLimit = 5
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = 30
	}
	return out
}

// RetrieveUseCase answers a query by consulting the semantic cache and,
// on a miss, fanning out to every tenant-scoped backend, fusing the
// survivors and writing the fresh result set through to the cache.
type RetrieveUseCase struct {
	backends []ports.SearchBackend
	expander ports.QueryExpander
	cache    ports.ResultCache
	audit    ports.AuditSink
	cfg      RetrieveConfig

	group singleflight.Group
}

func NewRetrieveUseCase(
	backends []ports.SearchBackend,
	expander ports.QueryExpander,
	cache ports.ResultCache,
	audit ports.AuditSink,
	cfg RetrieveConfig,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		backends: backends,
		expander: expander,
		cache:    cache,
		audit:    audit,
		cfg:      cfg.normalize(),
	}
}

func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	query string,
	tctx domain.TenantContext,
	opts domain.RetrievalOptions,
) (*domain.RetrievalResponse, error) {
	if err := tctx.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	if strings.TrimSpace(tctx.CorrelationID) == "" {
		tctx.CorrelationID = uuid.NewString()
	}
	if opts.Limit <= 0 {
		opts.Limit = uc.cfg.DefaultLimit
	}
	if opts.MinScore <= 0 {
		opts.MinScore = uc.cfg.DefaultMinScore
	}

	if entry, ok := uc.cache.Lookup(ctx, tctx, query); ok {
		uc.record("info", "cache_hit", "served from semantic cache", tctx, map[string]any{
			"results": len(entry.Results),
		})
		// Served results are relabeled CACHE on a copy; the stored entry
		// keeps the fused origins so repeated hits stay identical.
		results := make([]domain.RetrievalResult, len(entry.Results))
		copy(results, entry.Results)
		for i := range results {
			results[i].Origin = domain.OriginCache
		}
		return &domain.RetrievalResponse{
			Results:       results,
			CacheHit:      true,
			CorrelationID: tctx.CorrelationID,
		}, nil
	}

	// Concurrent identical-key misses share one computation; only the
	// leader writes through. Components are length-prefixed: tenant and
	// environment are caller-supplied, so a bare separator could make
	// distinct tenants collide on one flight key.
	key := fmt.Sprintf("%d:%s|%d:%s|%s",
		len(tctx.TenantID), tctx.TenantID,
		len(tctx.Environment), tctx.Environment,
		domain.NormalizeQuery(query))
	v, err, shared := uc.group.Do(key, func() (any, error) {
		return uc.computeFresh(ctx, query, tctx, opts)
	})
	if err != nil {
		return nil, err
	}

	resp := v.(*domain.RetrievalResponse)
	if shared && resp.CorrelationID != tctx.CorrelationID {
		follower := *resp
		follower.CorrelationID = tctx.CorrelationID
		return &follower, nil
	}
	return resp, nil
}

func (uc *RetrieveUseCase) computeFresh(
	ctx context.Context,
	query string,
	tctx domain.TenantContext,
	opts domain.RetrievalOptions,
) (*domain.RetrievalResponse, error) {
	degraded := false

	keywordQuery := query
	if uc.expander != nil {
		expanded, err := uc.expander.ExpandQuery(ctx, tctx.TenantID, query)
		switch {
		case err != nil:
			degraded = true
			uc.logFailure("query_expansion", tctx, err)
		case strings.TrimSpace(expanded) != "":
			keywordQuery = expanded
		}
	}

	type outcome struct {
		origin  domain.Origin
		results []domain.RetrievalResult
		err     error
	}
	outcomes := make([]outcome, len(uc.backends))

	var g errgroup.Group
	for i, backend := range uc.backends {
		i, backend := i, backend
		searchQuery := query
		if backend.Origin() == domain.OriginKeyword {
			searchQuery = keywordQuery
		}
		g.Go(func() error {
			results, err := backend.Search(ctx, tctx.TenantID, searchQuery, uc.cfg.CandidateLimit)
			outcomes[i] = outcome{origin: backend.Origin(), results: results, err: err}
			return nil
		})
	}
	// Wait for every backend to settle; a failed one degrades, it never
	// aborts the others.
	_ = g.Wait()

	backendResults := make([][]domain.RetrievalResult, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			degraded = true
			uc.logFailure("backend_"+strings.ToLower(string(o.origin)), tctx, o.err)
			continue
		}
		backendResults = append(backendResults, o.results)
	}
	if len(uc.backends) > 0 && failed == len(uc.backends) {
		err := domain.WrapError(domain.ErrAllBackendsFailed, "retrieve", fmt.Errorf("%d backends failed", failed))
		uc.record("error", "all_backends_failed", err.Error(), tctx, nil)
		return nil, err
	}

	fused := fuseBackendResults(backendResults, opts.MinScore, opts.Limit)

	if !degraded {
		now := time.Now().UTC()
		uc.cache.Store(ctx, tctx, query, domain.CacheEntry{
			Results:       fused,
			CorrelationID: tctx.CorrelationID,
			CreatedAt:     now,
			ExpiresAt:     now.Add(uc.cfg.CacheTTL),
		})
	}

	uc.record("info", "cache_miss", "computed fresh result set", tctx, map[string]any{
		"results":  len(fused),
		"degraded": degraded,
	})

	return &domain.RetrievalResponse{
		Results:       fused,
		Degraded:      degraded,
		CorrelationID: tctx.CorrelationID,
	}, nil
}

func (uc *RetrieveUseCase) logFailure(action string, tctx domain.TenantContext, err error) {
	details := map[string]any{"error": err.Error()}
	if kind, ok := domain.ResilienceKindOf(err); ok {
		details["kind"] = string(kind)
	}
	slog.Warn("retrieval_degraded",
		"action", action,
		"tenant_id", tctx.TenantID,
		"correlation_id", tctx.CorrelationID,
		"error", err,
	)
	uc.record("warn", action, err.Error(), tctx, details)
}

func (uc *RetrieveUseCase) record(level, action, message string, tctx domain.TenantContext, details map[string]any) {
	if uc.audit == nil {
		return
	}
	uc.audit.Record(domain.AuditRecord{
		Level:         level,
		Source:        "retrieval",
		Action:        action,
		Message:       message,
		CorrelationID: tctx.CorrelationID,
		TenantID:      tctx.TenantID,
		Details:       details,
		At:            time.Now().UTC(),
	})
}
