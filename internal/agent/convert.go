package agent

import (
	"encoding/json"

	"github.com/dataplane-ai/analyst-agent/internal/convo"
	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

// toLLMMessage converts one entry of the conversation history to the
// provider-neutral wire shape. Tool results are modeled as a user-role
// message carrying a ToolResultPart, matching the content-block style most
// chat-completion providers use for multi-turn tool use.
func toLLMMessage(msg convo.Message) *llm.Message {
	switch msg.Role {
	case convo.RoleUser:
		return &llm.Message{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: msg.Content}}}
	case convo.RoleDeveloper:
		return &llm.Message{Role: llm.RoleSystem, Parts: []llm.Part{llm.TextPart{Text: msg.Content}}}
	case convo.RoleTool:
		return &llm.Message{Role: llm.RoleUser, Parts: []llm.Part{llm.ToolResultPart{
			ToolUseID: msg.CallID,
			Content:   msg.Content,
		}}}
	case convo.RoleAssistant:
		parts := make([]llm.Part, 0, 1+len(msg.ToolCalls))
		if msg.Content != "" {
			parts = append(parts, llm.TextPart{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if len(tc.Arguments) > 0 {
				_ = json.Unmarshal(tc.Arguments, &input)
			}
			parts = append(parts, llm.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: input})
		}
		return &llm.Message{Role: llm.RoleAssistant, Parts: parts}
	default:
		return &llm.Message{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: msg.Content}}}
	}
}

// marshalResultContent serializes a tool Result to the string content of
// the `tool` message appended after dispatch (§4.1 step 4).
func marshalResultContent(res any) string {
	data, err := json.Marshal(res)
	if err != nil {
		return `{"ok":false,"error":{"kind":"llm_transport","message":"failed to encode tool result"}}`
	}
	return string(data)
}
