package tools

import (
	"context"
	"encoding/json"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
)

var emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// Done implements §4.2.6: a no-parameter terminating tool, enabled only
// once the artifact review gate or the todo list says the turn is finished.
type Done struct{}

func (Done) Name() string { return NameDone }

func (Done) Schema() json.RawMessage { return emptySchema }

func (Done) Enabled(bag *agentstate.Bag) bool {
	return bag.Bool(agentstate.KeyReviewNeeded) || bag.AllTodosCompleted()
}

func (Done) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	return Ok(map[string]any{"reason": "completed"})
}
