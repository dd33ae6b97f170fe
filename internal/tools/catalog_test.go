package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/catalog"
)

type fakeDatasetSource struct {
	datasets []catalog.Dataset
	err      error
}

func (s *fakeDatasetSource) ListDatasets(context.Context, uuid.UUID) ([]catalog.Dataset, error) {
	return s.datasets, s.err
}

type fakeRerankerAllThrough struct{}

func (fakeRerankerAllThrough) Rerank(_ context.Context, _ string, datasets []catalog.Dataset, topN int) ([]catalog.RankedDataset, error) {
	out := make([]catalog.RankedDataset, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, catalog.RankedDataset{Dataset: d, Score: 1})
	}
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func TestSearchDataCatalogReturnsEmptyResultsWhenNoDatasets(t *testing.T) {
	t.Parallel()

	tool := SearchDataCatalog{Source: &fakeDatasetSource{}, Reranker: fakeRerankerAllThrough{}}
	params, _ := json.Marshal(searchDataCatalogParams{SearchRequirements: "revenue by region"})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	require.True(t, result.OK)
	content := result.Content.(map[string]any)
	require.Empty(t, content["results"])
}

func TestSearchDataCatalogDegradesGracefullyOnSourceError(t *testing.T) {
	t.Parallel()

	tool := SearchDataCatalog{Source: &fakeDatasetSource{err: context.DeadlineExceeded}, Reranker: fakeRerankerAllThrough{}}
	params, _ := json.Marshal(searchDataCatalogParams{SearchRequirements: "revenue"})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	require.True(t, result.OK, "a source failure still returns an OK result with an explanatory message")
	content := result.Content.(map[string]any)
	require.Contains(t, content["message"], "catalog search failed")
}

func TestSearchDataCatalogMalformedArgumentsFails(t *testing.T) {
	t.Parallel()

	tool := SearchDataCatalog{}
	result := tool.Execute(callerCtx(), []byte("not json"), "call-1", nil)
	require.False(t, result.OK)
	require.Equal(t, "invalid_yaml", result.Error.Kind)
}

func TestSearchDataCatalogStateEffectSetsDataContextOnNonEmptyResults(t *testing.T) {
	t.Parallel()

	tool := SearchDataCatalog{}
	require.Nil(t, tool.StateEffect(Fail("invalid_yaml", "x", nil)))
	require.Nil(t, tool.StateEffect(Ok(map[string]any{"results": []datasetResult{}})))

	effect := tool.StateEffect(Ok(map[string]any{"results": []datasetResult{{ID: "1", Name: "orders"}, {ID: "2", Name: "customers"}}}))
	require.Equal(t, true, effect[agentstate.KeyDataContext])
	require.Equal(t, "orders, customers", effect[agentstate.KeyDatasetsSummary])
}
