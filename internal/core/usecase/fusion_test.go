package usecase

import (
	"testing"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

func TestFuseNormalizesPerBackendBeforeMerging(t *testing.T) {
	vector := []domain.RetrievalResult{
		{SourceID: "a", Score: 0.9, Origin: domain.OriginVector},
		{SourceID: "b", Score: 0.1, Origin: domain.OriginVector},
	}
	keyword := []domain.RetrievalResult{
		{SourceID: "c", Score: 120, Origin: domain.OriginKeyword},
		{SourceID: "d", Score: 40, Origin: domain.OriginKeyword},
	}

	fused := fuseBackendResults([][]domain.RetrievalResult{vector, keyword}, 0, 0)
	if len(fused) != 4 {
		t.Fatalf("expected 4 results, got %d", len(fused))
	}
	for _, r := range fused {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score %f for %s outside [0,1]", r.Score, r.SourceID)
		}
	}
	// Top of each backend normalizes to 1.0; vector wins the tie.
	if fused[0].SourceID != "a" || fused[1].SourceID != "c" {
		t.Fatalf("unexpected order: %v", fused)
	}
}

func TestFuseDeduplicatesBySourceID(t *testing.T) {
	vector := []domain.RetrievalResult{
		{SourceID: "a", Text: "vector text", Score: 0.4, Origin: domain.OriginVector},
		{SourceID: "b", Score: 0.8, Origin: domain.OriginVector},
	}
	keyword := []domain.RetrievalResult{
		{SourceID: "a", Text: "keyword text", Score: 10, Origin: domain.OriginKeyword},
		{SourceID: "e", Score: 2, Origin: domain.OriginKeyword},
	}

	fused := fuseBackendResults([][]domain.RetrievalResult{vector, keyword}, 0, 0)
	seen := map[string]int{}
	for _, r := range fused {
		seen[r.SourceID]++
	}
	if seen["a"] != 1 {
		t.Fatalf("expected one occurrence of duplicated source, got %d", seen["a"])
	}
	for _, r := range fused {
		if r.SourceID == "a" && r.Text != "keyword text" {
			t.Fatalf("expected the higher-scored duplicate to survive, got %q", r.Text)
		}
	}
}

func TestFuseTieBreakPrefersVectorOverKeywordOverGraph(t *testing.T) {
	graph := []domain.RetrievalResult{{SourceID: "g", Score: 1, Origin: domain.OriginGraphContext}}
	keyword := []domain.RetrievalResult{{SourceID: "k", Score: 1, Origin: domain.OriginKeyword}}
	vector := []domain.RetrievalResult{{SourceID: "v", Score: 1, Origin: domain.OriginVector}}

	fused := fuseBackendResults([][]domain.RetrievalResult{graph, keyword, vector}, 0, 0)
	got := []string{fused[0].SourceID, fused[1].SourceID, fused[2].SourceID}
	want := []string{"v", "k", "g"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie-break order = %v, want %v", got, want)
		}
	}
}

func TestFuseAppliesMinScoreAndLimit(t *testing.T) {
	vector := []domain.RetrievalResult{
		{SourceID: "a", Score: 1.0, Origin: domain.OriginVector},
		{SourceID: "b", Score: 0.6, Origin: domain.OriginVector},
		{SourceID: "c", Score: 0.2, Origin: domain.OriginVector},
		{SourceID: "d", Score: 0.0, Origin: domain.OriginVector},
	}

	fused := fuseBackendResults([][]domain.RetrievalResult{vector}, 0.3, 2)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results after minScore+limit, got %d", len(fused))
	}
	if fused[0].SourceID != "a" {
		t.Fatalf("expected best result first, got %s", fused[0].SourceID)
	}
}

func TestFuseSingleResultBackendNormalizesToOne(t *testing.T) {
	fused := fuseBackendResults([][]domain.RetrievalResult{
		{{SourceID: "only", Score: 0.37, Origin: domain.OriginVector}},
	}, 0, 0)
	if len(fused) != 1 || fused[0].Score != 1 {
		t.Fatalf("expected single positive-score result to normalize to 1, got %v", fused)
	}
}
