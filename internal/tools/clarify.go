package tools

import (
	"context"
	"encoding/json"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
)

var clarifyingQuestionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"question": {"type": "string"}
	},
	"required": ["question"]
}`)

// MessageUserClarifyingQuestion implements §4.2.7: terminating in
// initialization mode, its content is returned to the caller verbatim as
// the final assistant message.
type MessageUserClarifyingQuestion struct{}

func (MessageUserClarifyingQuestion) Name() string { return NameMessageUserClarifyingQuestion }

func (MessageUserClarifyingQuestion) Schema() json.RawMessage { return clarifyingQuestionSchema }

func (MessageUserClarifyingQuestion) Enabled(bag *agentstate.Bag) bool { return true }

type clarifyingQuestionParams struct {
	Question string `json:"question"`
}

func (MessageUserClarifyingQuestion) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p clarifyingQuestionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed clarifying question arguments: "+err.Error(), nil)
	}
	return Ok(map[string]any{"question": p.Question})
}
