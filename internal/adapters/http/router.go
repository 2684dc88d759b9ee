package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
	"github.com/ajabadia/ABDElevators-sub012/internal/core/ports"
	"github.com/ajabadia/ABDElevators-sub012/internal/observability/metrics"
)

const (
	tenantHeader      = "X-Tenant-Id"
	environmentHeader = "X-Environment"
)

type Options struct {
	Service             string
	DefaultEnvironment  string
	RateLimitRPS        float64
	RateLimitBurst      int
	MaxConcurrent       int
	BackpressureTimeout time.Duration
}

func (o Options) normalize() Options {
	if o.Service == "" {
		o.Service = "retrieval-api"
	}
	if o.DefaultEnvironment == "" {
		o.DefaultEnvironment = "prod"
	}
	if o.RateLimitRPS <= 0 {
		o.RateLimitRPS = 50
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 100
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 64
	}
	if o.BackpressureTimeout <= 0 {
		o.BackpressureTimeout = 2 * time.Second
	}
	return o
}

type Router struct {
	retrieval    ports.RetrievalService
	cacheAdmin   ports.CacheAdmin
	breakerAdmin ports.BreakerAdmin
	metrics      *metrics.RetrievalMetrics
	opts         Options
}

func NewRouter(
	retrieval ports.RetrievalService,
	cacheAdmin ports.CacheAdmin,
	breakerAdmin ports.BreakerAdmin,
	m *metrics.RetrievalMetrics,
	opts Options,
) *Router {
	return &Router{
		retrieval:    retrieval,
		cacheAdmin:   cacheAdmin,
		breakerAdmin: breakerAdmin,
		metrics:      m,
		opts:         opts.normalize(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/admin/breaker/reset", rt.resetBreaker)
	mux.HandleFunc("/v1/admin/cache/invalidate", rt.invalidateCache)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.BackpressureTimeout)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "header X-Tenant-Id is required"})
		return
	}
	environment := strings.TrimSpace(r.Header.Get(environmentHeader))
	if environment == "" {
		environment = rt.opts.DefaultEnvironment
	}

	var req struct {
		Query    string  `json:"query"`
		Limit    int     `json:"limit"`
		MinScore float64 `json:"min_score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	tctx := domain.TenantContext{
		TenantID:      tenantID,
		CorrelationID: requestIDFromContext(r.Context()),
		Environment:   environment,
	}

	start := time.Now()
	response, err := rt.retrieval.Retrieve(r.Context(), req.Query, tctx, domain.RetrievalOptions{
		Limit:    req.Limit,
		MinScore: req.MinScore,
	})
	if err != nil {
		rt.recordRetrieval("error", 0, time.Since(start))
		writeError(w, err)
		return
	}

	status := "ok"
	if response.Degraded {
		status = "degraded"
	}
	rt.recordRetrieval(status, len(response.Results), time.Since(start))
	if rt.metrics != nil {
		outcome := "miss"
		if response.CacheHit {
			outcome = "hit"
		}
		rt.metrics.RecordCacheLookup(rt.opts.Service, outcome)
	}

	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) resetBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rt.breakerAdmin.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) invalidateCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
		return
	}

	if err := rt.cacheAdmin.InvalidateTenant(r.Context(), req.TenantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (rt *Router) recordRetrieval(status string, resultCount int, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordRetrieval(rt.opts.Service, status, resultCount, duration)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
