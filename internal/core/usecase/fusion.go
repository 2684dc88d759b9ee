package usecase

import (
	"sort"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

// fuseBackendResults merges per-backend result lists into one ordered set:
// scores are min-max normalized onto [0,1] per backend before merging so
// heterogeneous scales stay comparable, duplicates collapse by source id
// keeping the stronger occurrence, and ties prefer the more direct signal
// (VECTOR over KEYWORD over GRAPH_CONTEXT).
func fuseBackendResults(backendResults [][]domain.RetrievalResult, minScore float64, limit int) []domain.RetrievalResult {
	merged := make(map[string]domain.RetrievalResult)
	for _, results := range backendResults {
		for _, r := range normalizeScores(results) {
			current, ok := merged[r.SourceID]
			if !ok || strongerResult(r, current) {
				merged[r.SourceID] = r
			}
		}
	}

	out := make([]domain.RetrievalResult, 0, len(merged))
	for _, r := range merged {
		if r.Score < minScore {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		pi, pj := domain.OriginPriority(out[i].Origin), domain.OriginPriority(out[j].Origin)
		if pi != pj {
			return pi < pj
		}
		return out[i].SourceID < out[j].SourceID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func normalizeScores(results []domain.RetrievalResult) []domain.RetrievalResult {
	if len(results) == 0 {
		return results
	}

	minScore := results[0].Score
	maxScore := results[0].Score
	for _, r := range results[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	scoreRange := maxScore - minScore
	out := make([]domain.RetrievalResult, len(results))
	for i, r := range results {
		switch {
		case scoreRange > 0:
			r.Score = (r.Score - minScore) / scoreRange
		case r.Score > 0:
			r.Score = 1
		default:
			r.Score = 0
		}
		out[i] = r
	}
	return out
}

func strongerResult(candidate, current domain.RetrievalResult) bool {
	if candidate.Score != current.Score {
		return candidate.Score > current.Score
	}
	return domain.OriginPriority(candidate.Origin) < domain.OriginPriority(current.Origin)
}
