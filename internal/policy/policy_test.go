package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tools(names ...string) []ToolMetadata {
	out := make([]ToolMetadata, len(names))
	for i, n := range names {
		out[i] = ToolMetadata{Name: n}
	}
	return out
}

func TestBasicDecideAllowsEverythingByDefault(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	d := e.Decide(Input{Tools: tools("search_data_catalog", "done")})
	require.ElementsMatch(t, []string{"search_data_catalog", "done"}, d.AllowedTools)
}

func TestBasicDecideBlockTools(t *testing.T) {
	t.Parallel()

	e := New(Options{BlockTools: []string{"done"}})
	d := e.Decide(Input{Tools: tools("search_data_catalog", "done")})
	require.Equal(t, []string{"search_data_catalog"}, d.AllowedTools)
}

func TestBasicDecideBlockTagsOverridesAllowTools(t *testing.T) {
	t.Parallel()

	e := New(Options{BlockTags: []string{"disabled"}})
	d := e.Decide(Input{Tools: []ToolMetadata{
		{Name: "create_metrics", Tags: []string{"disabled"}},
		{Name: "done"},
	}})
	require.Equal(t, []string{"done"}, d.AllowedTools)
}

func TestBasicDecideAllowlistRestrictsToNamedOrTagged(t *testing.T) {
	t.Parallel()

	e := New(Options{
		AllowTools: []string{"done"},
		AllowTags:  []string{"safe"},
	})
	d := e.Decide(Input{Tools: []ToolMetadata{
		{Name: "done"},
		{Name: "create_metrics", Tags: []string{"safe"}},
		{Name: "search_data_catalog"},
	}})
	require.ElementsMatch(t, []string{"done", "create_metrics"}, d.AllowedTools)
}

func TestBasicDecideRestrictToToolRetryHint(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	d := e.Decide(Input{
		Tools:     tools("search_data_catalog", "create_metrics", "done"),
		RetryHint: &RetryHint{Tool: "create_metrics", RestrictToTool: true},
	})
	require.Equal(t, []string{"create_metrics"}, d.AllowedTools)
}

func TestBasicDecideRetryHintRemovesFailingTool(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	d := e.Decide(Input{
		Tools:     tools("search_data_catalog", "create_metrics", "done"),
		RetryHint: &RetryHint{Tool: "create_metrics"},
	})
	require.ElementsMatch(t, []string{"search_data_catalog", "done"}, d.AllowedTools)
}

func TestBasicDecideDisableRetryHintsIgnoresHint(t *testing.T) {
	t.Parallel()

	e := New(Options{DisableRetryHints: true})
	d := e.Decide(Input{
		Tools:     tools("search_data_catalog", "create_metrics"),
		RetryHint: &RetryHint{Tool: "create_metrics", RestrictToTool: true},
	})
	require.ElementsMatch(t, []string{"search_data_catalog", "create_metrics"}, d.AllowedTools)
}

func TestBasicDecideRestrictToMissingToolYieldsNoTools(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	d := e.Decide(Input{
		Tools:     tools("search_data_catalog"),
		RetryHint: &RetryHint{Tool: "create_metrics", RestrictToTool: true},
	})
	require.Empty(t, d.AllowedTools)
}
