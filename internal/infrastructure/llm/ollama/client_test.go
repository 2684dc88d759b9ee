package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/resilience"
)

func testChain(maxAttempts int) *resilience.Chain {
	return resilience.NewChain(resilience.Config{
		TimeoutPerAttempt:   time.Second,
		BulkheadMaxActive:   4,
		BulkheadMaxQueued:   4,
		BreakerFailureRatio: 0.5,
		BreakerMinRequests:  100,
		RetryMaxAttempts:    maxAttempts,
		RetryInitialDelay:   time.Millisecond,
		RetryMaxDelay:       time.Millisecond,
		RetryMultiplier:     1.0,
	})
}

func TestExpandQueryReturnsGeneratedKeywords(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"response":"  freno motor zapata par apriete overspeed governor  "}`))
	}))
	defer server.Close()

	expander := NewExpander(New(server.URL, "llama3", "nomic-embed-text"), testChain(1))

	expanded, err := expander.ExpandQuery(context.Background(), "tenant-a", "freno motor")
	if err != nil {
		t.Fatalf("ExpandQuery() error = %v", err)
	}
	if expanded != "freno motor zapata par apriete overspeed governor" {
		t.Fatalf("unexpected expansion: %q", expanded)
	}
	if gotBody["model"] != "llama3" {
		t.Fatalf("expected gen model, got %v", gotBody["model"])
	}
	prompt, _ := gotBody["prompt"].(string)
	if !strings.Contains(prompt, "freno motor") {
		t.Fatalf("prompt must carry the query, got %q", prompt)
	}
}

func TestExpandQueryFallsBackToOriginalOnEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   "}`))
	}))
	defer server.Close()

	expander := NewExpander(New(server.URL, "llama3", "nomic-embed-text"), testChain(1))

	expanded, err := expander.ExpandQuery(context.Background(), "tenant-a", "freno motor")
	if err != nil {
		t.Fatalf("ExpandQuery() error = %v", err)
	}
	if expanded != "freno motor" {
		t.Fatalf("expected original query, got %q", expanded)
	}
}

func TestExpandQueryRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"freno zapata"}`))
	}))
	defer server.Close()

	expander := NewExpander(New(server.URL, "llama3", "nomic-embed-text"), testChain(3))

	expanded, err := expander.ExpandQuery(context.Background(), "tenant-a", "freno")
	if err != nil {
		t.Fatalf("ExpandQuery() error = %v", err)
	}
	if expanded != "freno zapata" {
		t.Fatalf("unexpected expansion: %q", expanded)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestEmbedQueryParsesVector(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"embeddings":[[0.25,-0.5,0.75]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "llama3", "nomic-embed-text"))

	vector, err := embedder.EmbedQuery(context.Background(), "freno motor")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 || vector[0] != 0.25 {
		t.Fatalf("unexpected vector: %v", vector)
	}
	if gotBody["model"] != "nomic-embed-text" {
		t.Fatalf("expected embed model, got %v", gotBody["model"])
	}
}

func TestEmbedQueryEmptyResultIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "llama3", "nomic-embed-text"))

	if _, err := embedder.EmbedQuery(context.Background(), "freno"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClassifyOllamaError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"server error", &HTTPStatusError{StatusCode: http.StatusInternalServerError}, true, true},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false, false},
		{"cancellation", context.Canceled, false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyOllamaError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.recordFailure {
				t.Fatalf("classifyOllamaError(%v) = %+v", tc.err, class)
			}
		})
	}
}

func TestBuildExpansionPromptTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes put the byte cap mid-rune; the cut must back up to a
	// boundary instead of emitting a broken sequence.
	query := strings.Repeat("日", 400)

	prompt := buildExpansionPrompt(query)
	if !utf8.ValidString(prompt) {
		t.Fatalf("truncated prompt contains invalid UTF-8")
	}
	if strings.Contains(prompt, "�") {
		t.Fatalf("truncated prompt contains a replacement rune")
	}
}
