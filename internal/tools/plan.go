package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

var planSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"plan": {"type": "string"}
	},
	"required": ["plan"]
}`)

type planParams struct {
	Plan string `json:"plan"`
}

// PlanTool implements both create_plan_straightforward and
// create_plan_investigative (§4.2.2): they share behavior and differ only
// in name. mode.Registry does not distinguish them: either one ends a
// planning mode and leads to analysis_execution.
type PlanTool struct {
	ToolName string
	Client   llm.Client
}

func (t PlanTool) Name() string { return t.ToolName }

func (PlanTool) Schema() json.RawMessage { return planSchema }

func (PlanTool) Enabled(bag *agentstate.Bag) bool { return true }

func (t PlanTool) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p planParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed plan arguments: "+err.Error(), nil)
	}

	todos, err := decomposeTodos(ctx, t.Client, p.Plan)
	if err != nil {
		// Decomposition failing still leaves a valid plan; fall back to a
		// single todo covering the whole plan text rather than failing the
		// tool outright.
		todos = []agentstate.Todo{{Todo: p.Plan}}
	}
	return Ok(map[string]any{"plan": p.Plan, "todos": todos})
}

// StateEffect applies §4.2.2: set plan_available and store the decomposed
// todos.
func (t PlanTool) StateEffect(result Result) map[string]any {
	if !result.OK {
		return nil
	}
	content, ok := result.Content.(map[string]any)
	if !ok {
		return nil
	}
	effect := map[string]any{agentstate.KeyPlanAvailable: true}
	if todos, ok := content["todos"]; ok {
		effect[agentstate.KeyTodos] = todos
	}
	return effect
}

const decomposePrompt = `Break the following analytics plan into a short checklist of discrete todo items, one per concrete action. Return strict JSON: {"todos": ["first action", "second action", ...]}.

PLAN:
%s`

type todoResponse struct {
	Todos []string `json:"todos"`
}

func decomposeTodos(ctx context.Context, client llm.Client, plan string) ([]agentstate.Todo, error) {
	resp, err := client.Complete(ctx, &llm.Request{
		ModelClass: llm.ModelClassSmall,
		Messages: []*llm.Message{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: strings.Replace(decomposePrompt, "%s", plan, 1)}}},
		},
	})
	if err != nil {
		return nil, err
	}
	text := responseText(resp)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("decompose todos: no JSON object found in response")
	}
	var parsed todoResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, err
	}
	todos := make([]agentstate.Todo, 0, len(parsed.Todos))
	for _, t := range parsed.Todos {
		todos = append(todos, agentstate.Todo{Todo: t})
	}
	return todos, nil
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
