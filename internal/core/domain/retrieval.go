package domain

import "time"

// Origin identifies which retrieval strategy produced a result.
type Origin string

const (
	OriginVector       Origin = "VECTOR"
	OriginKeyword      Origin = "KEYWORD"
	OriginGraphContext Origin = "GRAPH_CONTEXT"
	OriginCache        Origin = "CACHE"
)

// OriginPriority orders origins for tie-breaking after fusion. Lower is
// preferred: vector similarity is the most semantically direct signal.
func OriginPriority(o Origin) int {
	switch o {
	case OriginVector:
		return 0
	case OriginKeyword:
		return 1
	case OriginGraphContext:
		return 2
	default:
		return 3
	}
}

type RetrievalResult struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
	Origin   Origin  `json:"origin"`
}

type RetrievalOptions struct {
	Limit    int
	MinScore float64
}

// RetrievalResponse is what callers receive: best-effort results plus
// provenance. Degraded means at least one backend failed but the call
// still produced results from the rest.
type RetrievalResponse struct {
	Results       []RetrievalResult `json:"results"`
	Degraded      bool              `json:"degraded"`
	CacheHit      bool              `json:"cache_hit"`
	CorrelationID string            `json:"correlation_id"`
}

// CacheEntry is the stored form of a fresh computation. Payload order is
// preserved exactly as stored; entries are superseded by fresh writes,
// never mutated in place.
type CacheEntry struct {
	Results       []RetrievalResult `json:"results"`
	CorrelationID string            `json:"correlation_id"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
