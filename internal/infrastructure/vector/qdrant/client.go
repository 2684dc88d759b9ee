package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
)

// Client talks to a Qdrant collection holding one dense vector per chunk
// plus a named sparse vector ("lexical") for keyword search. Every point
// carries a tenant_id payload field and every search filters on it.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) searchDense(
	ctx context.Context,
	queryVector []float32,
	tenantID string,
	limit int,
) ([]domain.RetrievalResult, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter":       tenantFilter(tenantID),
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := c.postJSON(ctx, "/points/search", reqBody, &searchResp, "dense search"); err != nil {
		return nil, err
	}
	return mapPoints(searchResp.Result, domain.OriginVector), nil
}

func (c *Client) searchSparse(
	ctx context.Context,
	query sparseVector,
	tenantID string,
	limit int,
) ([]domain.RetrievalResult, error) {
	if len(query.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"query": map[string]any{
			"indices": query.Indices,
			"values":  query.Values,
		},
		"using":        "lexical",
		"limit":        limit,
		"with_payload": true,
		"filter":       tenantFilter(tenantID),
	}

	var queryResp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, "/points/query", reqBody, &queryResp, "sparse search"); err != nil {
		return nil, err
	}
	return mapPoints(queryResp.Result.Points, domain.OriginKeyword), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func tenantFilter(tenantID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": "tenant_id",
				"match": map[string]any{
					"value": tenantID,
				},
			},
		},
	}
}

func mapPoints(points []scoredPoint, origin domain.Origin) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, len(points))
	for _, p := range points {
		out = append(out, domain.RetrievalResult{
			SourceID: getStringPayload(p.Payload, "source_id"),
			Text:     getStringPayload(p.Payload, "text"),
			Score:    p.Score,
			Origin:   origin,
		})
	}
	return out
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
