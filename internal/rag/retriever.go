package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/internal/embeddings"
	"github.com/fusedchat/fusedchat/ai-core/internal/vectorstore"
	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// QueryExpander decomposes a query into auxiliary search queries.
// Expansion is best-effort; an empty slice means retrieval proceeds with
// the original query alone.
type QueryExpander interface {
	ExpandQuery(ctx context.Context, query, provider, model string, creds models.Credentials, count int) []string
}

// Retriever answers retrieval requests: embed the query (and optional
// sub-queries), search the vector index, merge hits, and assemble the
// citation-marked context block for synthesis.
type Retriever struct {
	embeddings    embeddings.Driver
	vectors       vectorstore.Driver
	expander      QueryExpander // nil disables expansion
	defaultTopK   int
	subQueryCount int
}

// RetrieverOptions tunes retrieval behavior.
type RetrieverOptions struct {
	DefaultTopK   int // hits returned when the request leaves TopK unset (default 5)
	SubQueryCount int // sub-queries requested per expansion (default 3)
}

// NewRetriever creates a retriever. expander may be nil.
func NewRetriever(emb embeddings.Driver, vs vectorstore.Driver, expander QueryExpander, opts RetrieverOptions) *Retriever {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.SubQueryCount <= 0 {
		opts.SubQueryCount = 3
	}
	return &Retriever{
		embeddings:    emb,
		vectors:       vs,
		expander:      expander,
		defaultTopK:   opts.DefaultTopK,
		subQueryCount: opts.SubQueryCount,
	}
}

// Retrieve runs the retrieval pipeline for one request.
func (r *Retriever) Retrieve(ctx context.Context, req *models.RetrievalRequest) (*models.RetrievalResult, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}

	queries := []string{query}
	var subQueries []string
	if req.Expand && r.expander != nil {
		subQueries = r.expander.ExpandQuery(ctx, query, req.Provider, req.Model, req.Credentials, r.subQueryCount)
		queries = append(queries, subQueries...)
	}

	// With multiple queries, fetch fewer hits per query and merge.
	perQueryK := topK
	if len(queries) > 1 {
		perQueryK = topK / len(queries)
		if perQueryK < 2 {
			perQueryK = 2
		}
	}

	seen := make(map[string]bool)
	var merged []models.SearchResult
	for _, q := range queries {
		vectors, err := r.embeddings.Embed(ctx, []string{q})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("no embedding returned for query")
		}

		hits, err := r.vectors.Search(ctx, req.UserID, vectors[0], perQueryK, nil)
		if err != nil {
			if q == query {
				return nil, fmt.Errorf("vector search: %w", err)
			}
			log.Warn().Err(err).Str("sub_query", q).Msg("sub-query search failed, skipping")
			continue
		}
		for _, h := range hits {
			if !seen[h.Doc.ID] {
				seen[h.Doc.ID] = true
				merged = append(merged, h)
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if req.MinScore > 0 {
		var filtered []models.SearchResult
		for _, h := range merged {
			if h.Score >= req.MinScore {
				filtered = append(filtered, h)
			}
		}
		merged = filtered
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}

	elapsed := time.Since(start)
	log.Info().
		Int("results", len(merged)).
		Int("sub_queries", len(subQueries)).
		Dur("elapsed", elapsed).
		Msg("retrieval complete")

	return &models.RetrievalResult{
		Sources:    merged,
		Context:    assembleContext(merged),
		SubQueries: subQueries,
		LatencyMs:  elapsed.Milliseconds(),
	}, nil
}

// assembleContext renders hits as numbered context entries matching the
// [1], [2] citation convention the synthesis prompt asks for.
func assembleContext(hits []models.SearchResult) string {
	if len(hits) == 0 {
		return "No relevant context found."
	}
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		source := h.Doc.Metadata["source"]
		if source == "" {
			source = h.Doc.DocumentID
		}
		fmt.Fprintf(&sb, "[%d] Source: %s\n%s", i+1, source, h.Doc.Content)
	}
	return sb.String()
}
