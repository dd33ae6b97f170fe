package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/catalog"
)

var searchDataCatalogSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"search_requirements": {"type": "string"}
	},
	"required": ["search_requirements"]
}`)

// SearchDataCatalog implements §4.2.1.
type SearchDataCatalog struct {
	Source   catalog.DatasetSource
	Reranker catalog.Reranker
	Filter   *catalog.RelevanceFilter
}

func (SearchDataCatalog) Name() string { return NameSearchDataCatalog }

func (SearchDataCatalog) Schema() json.RawMessage { return searchDataCatalogSchema }

func (SearchDataCatalog) Enabled(bag *agentstate.Bag) bool { return true }

type searchDataCatalogParams struct {
	SearchRequirements string `json:"search_requirements"`
}

type datasetResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	YMLContent string `json:"yml_content"`
}

func (t SearchDataCatalog) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p searchDataCatalogParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed search_data_catalog arguments: "+err.Error(), nil)
	}

	results, err := catalog.Search(ctx, t.Source, t.Reranker, t.Filter, OrgID(ctx), p.SearchRequirements, p.SearchRequirements)
	if err != nil {
		return Ok(map[string]any{"results": []datasetResult{}, "message": "catalog search failed: " + err.Error()})
	}

	out := make([]datasetResult, 0, len(results))
	for _, r := range results {
		out = append(out, datasetResult{ID: r.ID.String(), Name: r.Name, YMLContent: r.YMLContent})
	}
	return Ok(map[string]any{"results": out})
}

// StateEffect reports the state-bag mutation a successful, non-empty search
// applies (§4.2.1: sets data_context=true). The runtime applies this after
// a successful Execute rather than the tool touching the bag directly, so
// tools stay free of locking concerns.
func (t SearchDataCatalog) StateEffect(result Result) map[string]any {
	if !result.OK {
		return nil
	}
	content, ok := result.Content.(map[string]any)
	if !ok {
		return nil
	}
	results, _ := content["results"].([]datasetResult)
	if len(results) == 0 {
		return nil
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	return map[string]any{
		agentstate.KeyDataContext:     true,
		agentstate.KeyDatasetsSummary: strings.Join(names, ", "),
	}
}
