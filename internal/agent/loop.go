package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/concurrency"
	"github.com/dataplane-ai/analyst-agent/internal/convo"
	"github.com/dataplane-ai/analyst-agent/internal/llm"
	"github.com/dataplane-ai/analyst-agent/internal/mode"
	"github.com/dataplane-ai/analyst-agent/internal/policy"
	"github.com/dataplane-ai/analyst-agent/internal/runlog"
	"github.com/dataplane-ai/analyst-agent/internal/stream"
	"github.com/dataplane-ai/analyst-agent/internal/tools"
)

// defaultMaxLLMRetries bounds the exponential backoff retry applied to a
// completion call that fails with a retryable transport error. a.maxLLMRetries
// overrides this when Options.MaxLLMRetries is set.
const defaultMaxLLMRetries = 3

// loop is the §4.1 turn cycle: resolve mode, compose prompt, stream a
// completion, dispatch any tool calls, evaluate transitions, repeat.
func (a *Agent) loop(ctx context.Context, events chan<- Event) {
	defer close(events)

	a.appendRunlog(ctx, runlog.EventStarted, map[string]any{"conversation_id": a.conversationID})

	for {
		a.turnSeq++

		m, ok := a.modes.Get(a.currentMode)
		if !ok {
			a.emitError(ctx, events, agenterrors.New(agenterrors.KindLLMTransport, fmt.Sprintf("unknown mode %q", a.currentMode)))
			return
		}

		prompt, err := m.Render(mode.PromptData{
			TodaysDate: time.Now().UTC().Format("2006-01-02"),
			Datasets:   a.bag.String(agentstate.KeyDatasetsSummary),
		})
		if err != nil {
			a.emitError(ctx, events, agenterrors.WrapKind(agenterrors.KindLLMTransport, "", err))
			return
		}

		a.appendRunlog(ctx, runlog.EventModeTransition, map[string]any{"mode": string(m.Name), "phase": "active"})

		req := a.buildRequest(m, prompt)

		assistantText, calls, err := a.completeWithRetry(ctx, req, events)
		if err != nil {
			a.emitError(ctx, events, agenterrors.WrapKind(agenterrors.KindLLMTransport, "completion failed after retries", err))
			return
		}

		a.history = append(a.history, convo.Message{
			Role:      convo.RoleAssistant,
			Content:   assistantText,
			ToolCalls: calls,
			Progress:  convo.ProgressComplete,
		})

		if len(calls) == 0 {
			a.appendRunlog(ctx, runlog.EventDone, map[string]any{"reason": "no_tool_calls"})
			a.send(ctx, events, Done{FinalMessage: assistantText})
			return
		}

		results := a.dispatchTools(ctx, calls, events)
		for i, call := range calls {
			res := results[i]
			a.history = append(a.history, convo.ToolResult(call, call.Name, marshalResultContent(res)))
			a.applyStateEffect(call.Name, res)
			a.streamReg.Forget(call.ID)

			payload, _ := json.Marshal(map[string]any{"tool": call.Name, "tool_call_id": call.ID, "ok": res.OK})
			a.appendRunlogBytes(ctx, runlog.EventToolCall, payload)
		}

		next, terminated := checkTerminating(m, calls)
		if terminated && next == "" {
			final := terminalMessage(calls, results)
			a.appendRunlog(ctx, runlog.EventDone, map[string]any{"reason": "terminating_tool"})
			a.send(ctx, events, Done{FinalMessage: final})
			return
		}
		if !terminated {
			next = m.Name
		}

		resolved := a.modes.Resolve(next, a.bag)
		if resolved != a.currentMode {
			a.appendRunlog(ctx, runlog.EventModeTransition, map[string]any{"from": string(a.currentMode), "to": string(resolved)})
			a.send(ctx, events, ModeTransition{From: string(a.currentMode), To: string(resolved)})
		}
		a.currentMode = resolved
	}
}

// checkTerminating returns the first terminating tool call's destination
// mode found in calls, in emission order (§4.1's mode transition rules
// apply to the first terminating tool the model invoked in a turn, never a
// later one in the same batch).
func checkTerminating(m mode.Mode, calls []convo.ToolCall) (mode.Name, bool) {
	for _, c := range calls {
		if next, ok := m.IsTerminating(c.Name); ok {
			return next, true
		}
	}
	return m.Name, false
}

// terminalMessage extracts the user-facing text for a conversation-ending
// turn: the clarifying question's text if that's what ended it (taken from
// the tool result, or else from the call's own arguments), otherwise a
// generic completion notice.
func terminalMessage(calls []convo.ToolCall, results []tools.Result) string {
	for i, c := range calls {
		if c.Name != tools.NameMessageUserClarifyingQuestion || !results[i].OK {
			continue
		}
		if content, ok := results[i].Content.(map[string]any); ok {
			if q, ok := content["question"].(string); ok {
				return q
			}
		}
		var args struct {
			Question string `json:"question"`
		}
		if json.Unmarshal(c.Arguments, &args) == nil && args.Question != "" {
			return args.Question
		}
	}
	return "Done."
}

// completeWithRetry starts the completion stream and drains it, retrying the
// whole attempt with exponential backoff when it fails with a retryable
// transport error (rate limiting, a dropped connection, a stream that never
// starts). A non-retryable error, or exhausting the retry budget, returns
// the underlying error for the caller to emit.
func (a *Agent) completeWithRetry(ctx context.Context, req *llm.Request, events chan<- Event) (string, []convo.ToolCall, error) {
	maxRetries := a.maxLLMRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxLLMRetries
	}

	var assistantText string
	var calls []convo.ToolCall

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		streamer, err := a.llm.Stream(ctx, req)
		if err != nil {
			if !isRetryableTransportError(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		text, tcalls, err := a.drainStream(ctx, streamer, events)
		_ = streamer.Close()
		if err != nil {
			if !isRetryableTransportError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		assistantText, calls = text, tcalls
		return nil
	}, policy, func(err error, wait time.Duration) {
		a.logger.Warn(ctx, "llm transport error, retrying", "attempt", attempt, "wait", wait.String(), "error", err)
	})
	if err != nil {
		return "", nil, err
	}
	return assistantText, calls, nil
}

// isRetryableTransportError reports whether a completion failure is worth
// retrying: a caller-initiated cancellation never is, rate limiting and
// timeouts usually resolve themselves on a fresh attempt.
func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// drainStream reads a completion to its end, forwarding text as
// MessageDelta events and tool-call argument fragments through the stream
// processor registry as ArtifactUpdate events. It returns the accumulated
// assistant text and the finalized tool calls in emission order.
func (a *Agent) drainStream(ctx context.Context, s llm.Streamer, events chan<- Event) (string, []convo.ToolCall, error) {
	var text []byte
	started := make(map[string]bool)
	var calls []convo.ToolCall

	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return string(text), calls, err
		}

		switch chunk.Type {
		case llm.ChunkTypeText:
			text = append(text, chunk.Text...)
			a.send(ctx, events, MessageDelta{Text: chunk.Text})

		case llm.ChunkTypeToolCallDelta:
			d := chunk.ToolCallDelta
			if d == nil {
				continue
			}
			a.ensureToolCallStarted(ctx, events, started, d.ID, d.Name)

			update, ok, err := a.streamReg.Feed(d.Name, d.ID, d.Delta)
			if err != nil {
				a.logger.Warn(ctx, "stream processor error", "tool", d.Name, "tool_call_id", d.ID, "error", err)
				continue
			}
			if ok {
				a.send(ctx, events, toAgentArtifactUpdate(update))
			}

		case llm.ChunkTypeToolCall:
			tc := chunk.ToolCall
			if tc == nil {
				continue
			}
			a.ensureToolCallStarted(ctx, events, started, tc.ID, tc.Name)

			final := a.streamReg.Complete(tc.Name, tc.ID, string(tc.Payload), "", "")
			a.send(ctx, events, toAgentArtifactUpdate(final))
			calls = append(calls, convo.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Payload})

		case llm.ChunkTypeUsage, llm.ChunkTypeStop:
			// Usage/stop markers don't drive the loop directly; the caller
			// relies on Recv returning io.EOF to end the stream.
		}
	}

	return string(text), calls, nil
}

func (a *Agent) ensureToolCallStarted(ctx context.Context, events chan<- Event, started map[string]bool, id, name string) {
	if started[id] {
		return
	}
	started[id] = true
	a.send(ctx, events, ToolCallStart{ToolCallID: id, ToolName: name})
}

func toAgentArtifactUpdate(u stream.ArtifactUpdate) ArtifactUpdate {
	return ArtifactUpdate{
		ToolCallID:   u.ToolCallID,
		ArtifactType: u.ArtifactType,
		FileID:       u.FileID,
		FileName:     u.FileName,
		Status:       u.Status,
		TextChunk:    u.TextChunk,
		Text:         u.Text,
	}
}

// buildRequest composes the mode's prompt plus the current history into an
// llm.Request, offering only the tools this turn's mode lists, each tool's
// own enabled(state) predicate, and the policy engine all agree on.
func (a *Agent) buildRequest(m mode.Mode, prompt string) *llm.Request {
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()

	metas := make([]policy.ToolMetadata, 0, len(m.ToolNames))
	for _, name := range m.ToolNames {
		exec, ok := a.tools[name]
		if !ok || !exec.Enabled(a.bag) {
			continue
		}
		metas = append(metas, policy.ToolMetadata{Name: name})
	}
	decision := a.policy.Decide(policy.Input{Tools: metas})

	defs := make([]*llm.ToolDefinition, 0, len(decision.AllowedTools))
	for _, name := range decision.AllowedTools {
		exec, ok := a.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, &llm.ToolDefinition{Name: exec.Name(), InputSchema: exec.Schema()})
	}

	messages := make([]*llm.Message, 0, len(a.history)+1)
	messages = append(messages, &llm.Message{Role: llm.RoleSystem, Parts: []llm.Part{llm.TextPart{Text: prompt}}})
	for _, msg := range a.history {
		messages = append(messages, toLLMMessage(msg))
	}

	return &llm.Request{
		ModelClass: m.ModelClass,
		Messages:   messages,
		Tools:      defs,
		ToolChoice: &llm.ToolChoice{Mode: llm.ToolChoiceAuto},
	}
}

// dispatchTools executes every call concurrently, bounded by a.pool
// (default 8, §5), and returns results indexed to match calls' order
// regardless of completion order.
func (a *Agent) dispatchTools(ctx context.Context, calls []convo.ToolCall, events chan<- Event) []tools.Result {
	a.toolsMu.Lock()
	snapshot := make(map[string]tools.Executor, len(a.tools))
	for k, v := range a.tools {
		snapshot[k] = v
	}
	a.toolsMu.Unlock()

	ctx = tools.WithCaller(ctx, a.orgID, a.userID)
	ctx = tools.WithDataSourceSyntax(ctx, a.bag.String(agentstate.KeyDataSourceSyntax))

	return concurrency.Run(ctx, a.pool, calls, func(ctx context.Context, _ int, call convo.ToolCall) tools.Result {
		exec, ok := snapshot[call.Name]
		if !ok {
			return tools.Fail(string(agenterrors.KindNotFound), fmt.Sprintf("unknown tool %q", call.Name), nil)
		}
		if !exec.Enabled(a.bag) {
			return tools.Fail(string(agenterrors.KindPermissionDenied), fmt.Sprintf("tool %q is not enabled", call.Name), nil)
		}
		emitter := toolArtifactEmitter{ctx: ctx, agent: a, events: events, toolCallID: call.ID, toolName: call.Name}
		return exec.Execute(ctx, call.Arguments, call.ID, emitter)
	})
}

// stateEffecter is implemented by tool executors that mutate the state bag
// on success (§4.2's "on success" rules). Not part of tools.Executor so
// stateless tools don't need a no-op method.
type stateEffecter interface {
	StateEffect(tools.Result) map[string]any
}

func (a *Agent) applyStateEffect(name string, result tools.Result) {
	a.toolsMu.Lock()
	exec, ok := a.tools[name]
	a.toolsMu.Unlock()
	if !ok {
		return
	}
	se, ok := exec.(stateEffecter)
	if !ok {
		return
	}
	for k, v := range se.StateEffect(result) {
		a.bag.Set(k, v)
	}
}

// toolArtifactEmitter lets a tool executor publish intermediate
// ArtifactUpdate events mid-execution (§4.2's "may emit intermediate stream
// events via the agent handle").
type toolArtifactEmitter struct {
	ctx        context.Context
	agent      *Agent
	events     chan<- Event
	toolCallID string
	toolName   string
}

func (e toolArtifactEmitter) EmitArtifactUpdate(update any) {
	text := fmt.Sprintf("%v", update)
	e.agent.send(e.ctx, e.events, ArtifactUpdate{
		ToolCallID:   e.toolCallID,
		ArtifactType: e.toolName,
		Status:       stream.StatusLoading,
		Text:         text,
	})
}

func (a *Agent) send(ctx context.Context, events chan<- Event, e Event) {
	select {
	case events <- e:
	case <-ctx.Done():
	}
}

func (a *Agent) emitError(ctx context.Context, events chan<- Event, err error) {
	a.logger.Error(ctx, "agent loop error", "error", err)
	a.appendRunlog(ctx, runlog.EventError, map[string]any{"error": err.Error()})
	a.send(ctx, events, Error{Message: err.Error(), Kind: string(agenterrors.KindOf(err))})
}

func (a *Agent) appendRunlog(ctx context.Context, t runlog.EventType, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	a.appendRunlogBytes(ctx, t, data)
}

func (a *Agent) appendRunlogBytes(ctx context.Context, t runlog.EventType, payload json.RawMessage) {
	ev := &runlog.Event{
		ConversationID: a.conversationID,
		TurnID:         strconv.Itoa(a.turnSeq),
		Type:           t,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	}
	if err := a.runlog.Append(ctx, ev); err != nil {
		a.logger.Warn(ctx, "runlog append failed", "error", err)
	}
}
