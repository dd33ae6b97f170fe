package naiverank

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-ai/analyst-agent/internal/catalog"
)

func TestRerankOrdersByOverlapScore(t *testing.T) {
	t.Parallel()

	datasets := []catalog.Dataset{
		{ID: uuid.New(), Name: "customer_churn", YMLContent: "columns: churn rate by customer"},
		{ID: uuid.New(), Name: "marketing_spend", YMLContent: "columns: ad spend by channel"},
		{ID: uuid.New(), Name: "revenue_by_customer", YMLContent: "columns: revenue customer id"},
	}

	ranked, err := New().Rerank(context.Background(), "customer revenue", datasets, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	require.Equal(t, "revenue_by_customer", ranked[0].Dataset.Name)
	require.Greater(t, ranked[0].Score, ranked[len(ranked)-1].Score)
}

func TestRerankRespectsTopN(t *testing.T) {
	t.Parallel()

	datasets := []catalog.Dataset{
		{ID: uuid.New(), Name: "a", YMLContent: "customer"},
		{ID: uuid.New(), Name: "b", YMLContent: "customer"},
		{ID: uuid.New(), Name: "c", YMLContent: "customer"},
	}

	ranked, err := New().Rerank(context.Background(), "customer", datasets, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
}

func TestRerankBreaksTiesByName(t *testing.T) {
	t.Parallel()

	datasets := []catalog.Dataset{
		{ID: uuid.New(), Name: "zeta", YMLContent: "nothing relevant"},
		{ID: uuid.New(), Name: "alpha", YMLContent: "nothing relevant"},
	}

	ranked, err := New().Rerank(context.Background(), "unrelated query term", datasets, 0)
	require.NoError(t, err)
	require.Equal(t, "alpha", ranked[0].Dataset.Name)
	require.Equal(t, "zeta", ranked[1].Dataset.Name)
}

func TestRerankEmptyQueryScoresZero(t *testing.T) {
	t.Parallel()

	datasets := []catalog.Dataset{{ID: uuid.New(), Name: "a", YMLContent: "anything"}}
	ranked, err := New().Rerank(context.Background(), "", datasets, 0)
	require.NoError(t, err)
	require.Equal(t, float64(0), ranked[0].Score)
}

func TestTokenizeSplitsOnNonAlphanumeric(t *testing.T) {
	t.Parallel()

	terms := tokenize("Revenue-By_Customer 2024!")
	require.Contains(t, terms, "revenue")
	require.Contains(t, terms, "by")
	require.Contains(t, terms, "customer")
	require.Contains(t, terms, "2024")
}

func TestOverlapScoreComputesFraction(t *testing.T) {
	t.Parallel()

	terms := tokenize("customer revenue total")
	score := overlapScore(terms, "customer revenue report")
	require.InDelta(t, 2.0/3.0, score, 1e-9)
}
