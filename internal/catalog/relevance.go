package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

const maxFilterAttempts = 3

// RelevanceFilter is stage 2 of §4.6: given the reranked candidate pool, ask
// an LLM which candidates are actually relevant, returning strict JSON
// {"results": [{"id", "reason"}]}.
type RelevanceFilter struct {
	client llm.Client
}

// NewRelevanceFilter builds a filter backed by client.
func NewRelevanceFilter(client llm.Client) *RelevanceFilter {
	return &RelevanceFilter{client: client}
}

type filterResponse struct {
	Results []filterResult `json:"results"`
}

type filterResult struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Filter asks the LLM which of ranked is relevant to query/userRequest, and
// parses its strict-JSON response. Parse failures are retried up to
// maxFilterAttempts times with the parse error appended back into the
// prompt, per §4.2.1.
func (f *RelevanceFilter) Filter(ctx context.Context, query, userRequest string, ranked []RankedDataset) ([]Result, error) {
	byID := make(map[uuid.UUID]RankedDataset, len(ranked))
	for _, r := range ranked {
		byID[r.Dataset.ID] = r
	}

	var lastErr error
	for attempt := 0; attempt < maxFilterAttempts; attempt++ {
		prompt := buildFilterPrompt(query, userRequest, ranked, lastErr)
		resp, err := f.client.Complete(ctx, &llm.Request{
			ModelClass: llm.ModelClassSmall,
			Messages: []*llm.Message{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: prompt}}},
			},
		})
		if err != nil {
			return nil, err
		}

		text := responseText(resp)
		var parsed filterResponse
		if err := json.Unmarshal([]byte(extractJSONObject(text)), &parsed); err != nil {
			lastErr = fmt.Errorf("invalid JSON response: %w", err)
			continue
		}
		return toResults(parsed, byID), nil
	}
	return nil, lastErr
}

// buildFilterPrompt lists the reranked candidates and asks for strict JSON.
// When lastErr is non-nil, it is appended so the model can self-correct.
func buildFilterPrompt(query, userRequest string, ranked []RankedDataset, lastErr error) string {
	var b strings.Builder
	b.WriteString("You are a dataset relevance evaluator. Be inclusive: include a dataset if there is a reasonable chance its structure could answer the request.\n\n")
	fmt.Fprintf(&b, "USER REQUEST: %s\n", userRequest)
	fmt.Fprintf(&b, "SEARCH QUERY: %s\n\n", query)
	b.WriteString("DATASETS:\n")
	for _, r := range ranked {
		fmt.Fprintf(&b, "- id: %s\n  name: %s\n  yml_content: |\n", r.Dataset.ID, r.Dataset.Name)
		for _, line := range strings.Split(r.Dataset.YMLContent, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	b.WriteString("\nReturn strict JSON only: {\"results\": [{\"id\": \"...\", \"reason\": \"...\"}]}\n")
	if lastErr != nil {
		fmt.Fprintf(&b, "\nYour previous response failed to parse: %s\nReturn ONLY the JSON object, with no surrounding prose.\n", lastErr)
	}
	return b.String()
}

func responseText(resp *llm.Response) string {
	var b strings.Builder
	for _, m := range resp.Content {
		for _, p := range m.Parts {
			if tp, ok := p.(llm.TextPart); ok {
				b.WriteString(tp.Text)
			}
		}
	}
	return b.String()
}

// extractJSONObject trims any prose surrounding the first top-level {...}
// block, tolerating models that wrap JSON in markdown fences or commentary.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

// toResults drops ids that are not valid UUIDs or not in the candidate set,
// and deduplicates while preserving the model's ordering.
func toResults(parsed filterResponse, byID map[uuid.UUID]RankedDataset) []Result {
	seen := make(map[uuid.UUID]struct{}, len(parsed.Results))
	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		candidate, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Result{
			ID:         id,
			Name:       candidate.Dataset.Name,
			YMLContent: candidate.Dataset.YMLContent,
			Reason:     r.Reason,
		})
	}
	return out
}
