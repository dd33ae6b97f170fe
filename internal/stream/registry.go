package stream

import (
	"strings"
	"sync"
)

// ArtifactStatus tags whether a processed output is still arriving or done.
type ArtifactStatus string

const (
	StatusLoading   ArtifactStatus = "loading"
	StatusCompleted ArtifactStatus = "completed"
)

// ArtifactUpdate is the caller-facing event emitted as a processor makes
// progress on one tool call's buffered arguments (§6).
type ArtifactUpdate struct {
	ToolCallID   string
	ArtifactType string
	FileID       string
	FileName     string
	Status       ArtifactStatus
	TextChunk    string
	Text         string
}

// Output is a processor's computed result for one buffer state.
type Output struct {
	FileID   string
	FileName string
	Text     string
	Status   ArtifactStatus
}

// Processor is implemented by each processor_type (metric, dashboard, text).
// Process is pure given (id, partialJSON, previous): side effects belong to
// the tool executor's final-completion path, never to a partial emission.
type Processor interface {
	ProcessorType() string
	CanProcess(partialJSON string) bool
	Process(id string, partialJSON string, previous *Output) (*Output, error)
}

// bufferState is the per-tool-call-id accumulated state the registry keeps:
// the raw concatenated chunk buffer and the last emitted output, used to
// compute the next delta.
type bufferState struct {
	raw      strings.Builder
	lastOut  *Output
}

// Registry maps tool name to Processor and tracks one bufferState per
// tool_call_id so deltas can be computed as chunks arrive.
type Registry struct {
	mu         sync.Mutex
	processors map[string]Processor
	buffers    map[string]*bufferState
}

// NewRegistry builds an empty registry. Register processors with Register.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
		buffers:    make(map[string]*bufferState),
	}
}

// Register associates toolName with a Processor.
func (r *Registry) Register(toolName string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[toolName] = p
}

// Feed appends chunk to the buffer for (toolName, toolCallID), structurally
// completes it, and runs it through the registered processor, returning an
// ArtifactUpdate describing the delta versus the last emitted output for
// this tool_call_id. It returns false if no processor is registered for
// toolName or the processor is not yet ready to process the buffer.
func (r *Registry) Feed(toolName, toolCallID, chunk string) (ArtifactUpdate, bool, error) {
	r.mu.Lock()
	p, hasProcessor := r.processors[toolName]
	state, ok := r.buffers[toolCallID]
	if !ok {
		state = &bufferState{}
		r.buffers[toolCallID] = state
	}
	state.raw.WriteString(chunk)
	raw := state.raw.String()
	previous := state.lastOut
	r.mu.Unlock()

	if !hasProcessor {
		return ArtifactUpdate{}, false, nil
	}

	completed := CompleteJSON(raw)
	if !p.CanProcess(completed) {
		return ArtifactUpdate{}, false, nil
	}

	out, err := p.Process(toolCallID, completed, previous)
	if err != nil {
		return ArtifactUpdate{}, false, err
	}
	if out == nil {
		return ArtifactUpdate{}, false, nil
	}

	r.mu.Lock()
	state.lastOut = out
	r.mu.Unlock()

	update := ArtifactUpdate{
		ToolCallID:   toolCallID,
		ArtifactType: p.ProcessorType(),
		FileID:       out.FileID,
		FileName:     out.FileName,
		Status:       out.Status,
		Text:         out.Text,
		TextChunk:    deltaText(previous, out),
	}
	return update, true, nil
}

// Complete marks the final, non-streamed dispatch result for toolCallID,
// emitting a status=completed update with the full final text. Callers use
// this once the assistant message's tool call closes, independent of
// whether any partial Feed ever ran.
func (r *Registry) Complete(toolName, toolCallID string, finalText, fileID, fileName string) ArtifactUpdate {
	r.mu.Lock()
	p, hasProcessor := r.processors[toolName]
	r.mu.Unlock()
	artifactType := toolName
	if hasProcessor {
		artifactType = p.ProcessorType()
	}
	return ArtifactUpdate{
		ToolCallID:   toolCallID,
		ArtifactType: artifactType,
		FileID:       fileID,
		FileName:     fileName,
		Status:       StatusCompleted,
		Text:         finalText,
	}
}

// Forget drops buffered state for toolCallID once its turn has fully
// resolved, so long conversations don't accumulate unbounded memory.
func (r *Registry) Forget(toolCallID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, toolCallID)
}

func deltaText(previous *Output, out *Output) string {
	prevText := ""
	if previous != nil {
		prevText = previous.Text
	}
	if len(out.Text) > len(prevText) && strings.HasPrefix(out.Text, prevText) {
		return out.Text[len(prevText):]
	}
	return out.Text
}
