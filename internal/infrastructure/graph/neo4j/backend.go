package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ajabadia/ABDElevators-sub012/internal/core/domain"
	"github.com/ajabadia/ABDElevators-sub012/internal/infrastructure/resilience"
)

const opGraphSearch = "neo4j_graph_search"

// contextQuery finds chunks through the maintenance knowledge graph: a
// full-text match on chunk text, expanded one hop to referenced chunks of
// the same tenant so procedures pull in the components they mention.
const contextQuery = `
CALL db.index.fulltext.queryNodes('chunk_text', $query) YIELD node, score
WHERE node.tenant_id = $tenant_id
OPTIONAL MATCH (node)-[:REFERENCES]->(ref:Chunk {tenant_id: $tenant_id})
WITH node, score, collect(ref.text)[..2] AS refs
RETURN node.source_id AS source_id,
       reduce(acc = node.text, r IN refs | acc + '\n' + r) AS text,
       score
ORDER BY score DESC
LIMIT $limit`

type queryRunner interface {
	run(ctx context.Context, cypher string, params map[string]any) ([]*neo4jdriver.Record, error)
}

type driverRunner struct {
	driver   neo4jdriver.DriverWithContext
	database string
}

func (r *driverRunner) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4jdriver.Record, error) {
	result, err := neo4jdriver.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4jdriver.EagerResultTransformer,
		neo4jdriver.ExecuteQueryWithDatabase(r.database),
		neo4jdriver.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	return result.Records, nil
}

// Backend retrieves graph-expanded context chunks, scoped to the
// requesting tenant.
type Backend struct {
	runner queryRunner
	chain  *resilience.Chain
}

func NewBackend(driver neo4jdriver.DriverWithContext, database string, chain *resilience.Chain) *Backend {
	return &Backend{
		runner: &driverRunner{driver: driver, database: database},
		chain:  chain,
	}
}

func newWithRunner(runner queryRunner, chain *resilience.Chain) *Backend {
	return &Backend{runner: runner, chain: chain}
}

func (b *Backend) Origin() domain.Origin {
	return domain.OriginGraphContext
}

func (b *Backend) Search(ctx context.Context, tenantID, query string, limit int) ([]domain.RetrievalResult, error) {
	fulltext := sanitizeFulltextQuery(query)
	if fulltext == "" {
		return nil, nil
	}

	params := map[string]any{
		"query":     fulltext,
		"tenant_id": tenantID,
		"limit":     limit,
	}

	var out []domain.RetrievalResult
	err := b.chain.Execute(ctx, opGraphSearch, func(ctx context.Context) error {
		records, err := b.runner.run(ctx, contextQuery, params)
		if err != nil {
			return err
		}
		out = mapRecords(records)
		return nil
	}, classifyGraphError)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func mapRecords(records []*neo4jdriver.Record) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, len(records))
	for _, record := range records {
		values := record.AsMap()
		out = append(out, domain.RetrievalResult{
			SourceID: asString(values["source_id"]),
			Text:     asString(values["text"]),
			Score:    asFloat(values["score"]),
			Origin:   domain.OriginGraphContext,
		})
	}
	return out
}

// sanitizeFulltextQuery strips Lucene operators so user input cannot
// change the query structure, then ORs the remaining terms.
func sanitizeFulltextQuery(query string) string {
	terms := make([]string, 0, 8)
	for _, field := range strings.Fields(query) {
		term := strings.Map(func(r rune) rune {
			switch r {
			case '+', '-', '&', '|', '!', '(', ')', '{', '}', '[', ']', '^', '"', '~', '*', '?', ':', '\\', '/':
				return -1
			}
			return r
		}, field)
		if term != "" {
			terms = append(terms, term)
		}
	}
	return strings.Join(terms, " OR ")
}

func classifyGraphError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if neo4jdriver.IsRetryable(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
