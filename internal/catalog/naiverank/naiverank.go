// Package naiverank provides a process-local, dependency-free default for
// catalog.Reranker. §1 marks semantic reranking an out-of-scope external
// collaborator, and no reranking library appears anywhere in the example
// pack to ground a real implementation on, so this exists only so cmd/agentd
// has something to plug into catalog.Search out of the box; production
// deployments are expected to supply a hosted reranker instead.
package naiverank

import (
	"context"
	"sort"
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/catalog"
)

// Reranker scores datasets by token overlap between the query and the
// dataset's name and yml_content, breaking ties by name for determinism.
type Reranker struct{}

// New returns a naive keyword-overlap Reranker.
func New() Reranker { return Reranker{} }

// Rerank implements catalog.Reranker.
func (Reranker) Rerank(_ context.Context, query string, datasets []catalog.Dataset, topN int) ([]catalog.RankedDataset, error) {
	terms := tokenize(query)

	ranked := make([]catalog.RankedDataset, 0, len(datasets))
	for _, d := range datasets {
		score := overlapScore(terms, d.Name, d.YMLContent)
		ranked = append(ranked, catalog.RankedDataset{Dataset: d, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Dataset.Name < ranked[j].Dataset.Name
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, nil
}

func overlapScore(terms map[string]struct{}, fields ...string) float64 {
	if len(terms) == 0 {
		return 0
	}
	hay := tokenize(strings.Join(fields, " "))
	var hits int
	for t := range terms {
		if _, ok := hay[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}
