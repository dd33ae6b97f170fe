package sqlsafety

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

func TestAnalyzeExtractsQualifiedTableAndColumns(t *testing.T) {
	t.Parallel()

	a, err := Analyze("SELECT o.id, o.total FROM analytics.orders AS o")
	require.NoError(t, err)
	require.Len(t, a.Tables, 1)
	require.Equal(t, TableRef{Schema: "analytics", Table: "orders", Alias: "o"}, a.Tables[0])
	require.True(t, a.Tables[0].Qualified())
	require.Equal(t, []string{"o . id", "o . total"}, a.Columns)
}

func TestAnalyzeExtractsDatabaseSchemaTable(t *testing.T) {
	t.Parallel()

	a, err := Analyze("SELECT o.id FROM warehouse.analytics.orders AS o")
	require.NoError(t, err)
	require.Len(t, a.Tables, 1)
	require.Equal(t, "warehouse", a.Tables[0].Database)
	require.Equal(t, "analytics", a.Tables[0].Schema)
	require.Equal(t, "orders", a.Tables[0].Table)
}

func TestAnalyzeExtractsCTEs(t *testing.T) {
	t.Parallel()

	a, err := Analyze("WITH recent AS (SELECT o.id FROM analytics.orders AS o) SELECT r.id FROM recent AS r")
	require.Equal(t, agenterrors.KindVagueReferences, agenterrors.KindOf(err), "the CTE reference carries no schema")
	require.Len(t, a.CTEs, 1)
	require.Equal(t, "recent", a.CTEs[0].Name)
}

func TestAnalyzeExtractsJoins(t *testing.T) {
	t.Parallel()

	a, err := Analyze("SELECT a.id FROM analytics.orders AS a JOIN analytics.customers AS c ON a.customer_id = c.id")
	require.NoError(t, err)
	require.Len(t, a.Joins, 1)
	require.Equal(t, JoinEdge{LeftTable: "a", RightTable: "c"}, a.Joins[0])
}

func TestAnalyzeRejectsUnqualifiedTable(t *testing.T) {
	t.Parallel()

	_, err := Analyze("SELECT o.id FROM orders AS o")
	require.Error(t, err)
	require.Equal(t, agenterrors.KindVagueReferences, agenterrors.KindOf(err))
}

func TestAnalyzeRejectsUnqualifiedColumn(t *testing.T) {
	t.Parallel()

	_, err := Analyze("SELECT id FROM analytics.orders AS o")
	require.Error(t, err)
	require.Equal(t, agenterrors.KindVagueReferences, agenterrors.KindOf(err))
}

func TestAnalyzeAllowsStarAndFunctionCalls(t *testing.T) {
	t.Parallel()

	a, err := Analyze("SELECT o.*, COUNT(*) AS n FROM analytics.orders AS o")
	require.NoError(t, err)
	require.Equal(t, []string{"o . *", "COUNT ( * ) AS n"}, a.Columns)
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Analyze("   ")
	require.Error(t, err)
	require.Equal(t, agenterrors.KindSqlInvalid, agenterrors.KindOf(err))
}

func TestAnalyzeIgnoresSubqueryDerivedTables(t *testing.T) {
	t.Parallel()

	a, err := Analyze("SELECT s.id FROM (SELECT o.id FROM analytics.orders AS o) AS s")
	require.NoError(t, err)
	require.Len(t, a.Tables, 1)
	require.Equal(t, "orders", a.Tables[0].Table)
}
