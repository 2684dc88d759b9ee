package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/resilience"
)

const opExpandQuery = "ollama_expand_query"

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embedder turns query text into a dense vector. It is invoked inside the
// vector backend's resilience envelope, so it stays a plain client call.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Expander rewrites a user query into domain search terms before the
// keyword backend sees it.
type Expander struct {
	client *Client
	chain  *resilience.Chain
}

func NewExpander(client *Client, chain *resilience.Chain) *Expander {
	return &Expander{client: client, chain: chain}
}

func (e *Expander) ExpandQuery(ctx context.Context, tenantID, query string) (string, error) {
	var expanded string
	err := e.chain.Execute(ctx, opExpandQuery, func(ctx context.Context) error {
		text, err := e.client.generateText(ctx, buildExpansionPrompt(query))
		if err != nil {
			return err
		}
		expanded = text
		return nil
	}, classifyOllamaError)
	if err != nil {
		return "", err
	}
	if expanded == "" {
		return query, nil
	}
	return expanded, nil
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
