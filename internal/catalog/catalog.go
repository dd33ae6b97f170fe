// Package catalog implements §4.6's two-stage dataset search: a semantic
// rerank (an out-of-scope collaborator, specified only at its interface)
// followed by an LLM relevance filter grounded on internal/llm.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Dataset is one organization dataset description.
type Dataset struct {
	ID         uuid.UUID
	Name       string
	YMLContent string
}

// RankedDataset is a dataset with its reranker relevance score.
type RankedDataset struct {
	Dataset Dataset
	Score   float64
}

// Reranker is the out-of-scope semantic reranking collaborator (§1): given a
// query and documents, return the top N by descending relevance. Production
// callers would back this with a hosted rerank model; there is no such
// dependency anywhere in the example pack, so this package only defines the
// interface its own stage consumes.
type Reranker interface {
	Rerank(ctx context.Context, query string, datasets []Dataset, topN int) ([]RankedDataset, error)
}

// Result is one dataset judged relevant by the LLM filter.
type Result struct {
	ID         uuid.UUID
	Name       string
	YMLContent string
	Reason     string
}

// DatasetSource fetches the candidate pool: all non-deleted datasets with
// YAML content for the caller's organization.
type DatasetSource interface {
	ListDatasets(ctx context.Context, organizationID uuid.UUID) ([]Dataset, error)
}

const defaultTopN = 30

// Search runs both stages of §4.6: rerank to topN candidates, then ask the
// relevance filter which of those candidates are actually useful for query.
// A reranker failure degrades to an empty result with the error attached
// (§4.2.1's stated failure mode: "rerank error → return empty results with
// message"); the caller is the one that turns that into a tool message, so
// Search itself never swallows the error.
func Search(ctx context.Context, source DatasetSource, reranker Reranker, filter *RelevanceFilter, organizationID uuid.UUID, query, userRequest string) ([]Result, error) {
	datasets, err := source.ListDatasets(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		return nil, nil
	}

	ranked, err := reranker.Rerank(ctx, query, datasets, defaultTopN)
	if err != nil {
		return nil, fmt.Errorf("rerank datasets: %w", err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	return filter.Filter(ctx, query, userRequest, ranked)
}
