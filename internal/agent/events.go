package agent

import "github.com/dataplane-ai/analyst-agent/internal/stream"

// Event is the tagged union streamed out of Run: an assistant text
// fragment, a tool call starting, an artifact processor update, a mode
// transition, the conversation ending, or a fatal error. Concrete types
// carry `json` tags so callers can forward them straight to a transport
// without a translation layer.
type Event interface {
	isEvent()
}

// MessageDelta is a fragment of the assistant's streamed text.
type MessageDelta struct {
	Text string `json:"text"`
}

// ToolCallStart fires the first time a tool call's id appears in the
// stream, before any of its arguments have necessarily arrived.
type ToolCallStart struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
}

// ArtifactUpdate reports a stream processor's latest computed output for
// one tool call, per §6.
type ArtifactUpdate struct {
	ToolCallID   string                `json:"tool_call_id"`
	ArtifactType string                `json:"artifact_type"`
	FileID       string                `json:"file_id,omitempty"`
	FileName     string                `json:"file_name,omitempty"`
	Status       stream.ArtifactStatus `json:"status"`
	TextChunk    string                `json:"text_chunk,omitempty"`
	Text         string                `json:"text,omitempty"`
}

// ModeTransition reports the runtime moving from one mode to another.
type ModeTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Done terminates the event stream: the conversation has reached a
// terminating tool call (done, or a clarifying question) or the model
// produced a final message with no further tool calls.
type Done struct {
	FinalMessage string `json:"final_message"`
}

// Error terminates the event stream on a fatal, unrecoverable failure
// (an LLM transport error, an unknown mode, a context cancellation).
type Error struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (MessageDelta) isEvent()   {}
func (ToolCallStart) isEvent()  {}
func (ArtifactUpdate) isEvent() {}
func (ModeTransition) isEvent() {}
func (Done) isEvent()           {}
func (Error) isEvent()          {}
