package llm

import (
	"context"
	"strings"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// ExpandQuery decomposes a query into at most count auxiliary search
// queries by asking a backend through the single-shot task path. It is
// best-effort: any failure (unsupported provider, transport error) logs
// and returns an empty slice, since expansion only widens retrieval and
// is never required for correctness. count <= 0 short-circuits without a
// backend call.
func (r *Router) ExpandQuery(ctx context.Context, query, provider, model string, creds models.Credentials, count int) []string {
	if count <= 0 {
		return nil
	}

	raw, err := r.taskCall(ctx, provider, CallRequest{
		Prompt:      renderSubQueryPrompt(query, count),
		Model:       model,
		Credentials: creds,
	})
	if err != nil {
		log.Warn().Str("provider", provider).Err(err).Msg("sub-query expansion failed, continuing without it")
		return nil
	}

	queries := parseSubQueries(raw)
	if len(queries) > count {
		queries = queries[:count]
	}
	return queries
}

// parseSubQueries extracts non-empty lines, stripping the list prefixes
// ("1.", "- ", "* ") models add despite being told not to.
func parseSubQueries(text string) []string {
	var queries []string
	for _, line := range strings.Split(text, "\n") {
		line = stripListMarker(strings.TrimSpace(line))
		if line != "" {
			queries = append(queries, line)
		}
	}
	return queries
}

// stripListMarker removes one leading bullet ("-", "*") or numbered
// marker ("3." / "3)") from line. Bare leading digits are content, not a
// marker: "2023 trends in AI" stays whole.
func stripListMarker(line string) string {
	if len(line) > 0 && (line[0] == '-' || line[0] == '*') {
		return strings.TrimSpace(line[1:])
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
