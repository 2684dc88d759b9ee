package qdrant

import (
	"context"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
	"github.com/ajabadia/ABDElevators-sub012/internal/core/ports"
	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/resilience"
)

const (
	opVectorSearch  = "qdrant_vector_search"
	opKeywordSearch = "qdrant_keyword_search"
)

// VectorBackend embeds the query and runs a dense similarity search,
// scoped to the requesting tenant.
type VectorBackend struct {
	client   *Client
	embedder ports.Embedder
	chain    *resilience.Chain
}

func NewVectorBackend(client *Client, embedder ports.Embedder, chain *resilience.Chain) *VectorBackend {
	return &VectorBackend{client: client, embedder: embedder, chain: chain}
}

func (b *VectorBackend) Origin() domain.Origin {
	return domain.OriginVector
}

func (b *VectorBackend) Search(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievalResult, error) {
	var out []domain.RetrievalResult
	err := b.chain.Execute(ctx, opVectorSearch, func(ctx context.Context) error {
		vector, err := b.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return err
		}
		results, err := b.client.searchDense(ctx, vector, tenantID, limit)
		if err != nil {
			return err
		}
		out = results
		return nil
	}, classifySearchError)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// KeywordBackend runs a lexical search against the collection's sparse
// vectors. The query is hashed into BM25-weighted terms locally, so no
// embedding round trip is needed.
type KeywordBackend struct {
	client *Client
	chain  *resilience.Chain
}

func NewKeywordBackend(client *Client, chain *resilience.Chain) *KeywordBackend {
	return &KeywordBackend{client: client, chain: chain}
}

func (b *KeywordBackend) Origin() domain.Origin {
	return domain.OriginKeyword
}

func (b *KeywordBackend) Search(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievalResult, error) {
	sparse := encodeSparseQuery(query)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	var out []domain.RetrievalResult
	err := b.chain.Execute(ctx, opKeywordSearch, func(ctx context.Context) error {
		results, err := b.client.searchSparse(ctx, sparse, tenantID, limit)
		if err != nil {
			return err
		}
		out = results
		return nil
	}, classifySearchError)
	if err != nil {
		return nil, err
	}
	return out, nil
}
