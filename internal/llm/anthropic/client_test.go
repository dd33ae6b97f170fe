package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

// stubMessagesClient is grounded on the teacher's own test double for this
// exact seam (features/model/anthropic/client_test.go).
type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&noopDecoder{}, nil)
}

type noopDecoder struct{}

func (n *noopDecoder) Event() ssestream.Event { return ssestream.Event{} }
func (n *noopDecoder) Next() bool             { return false }
func (n *noopDecoder) Close() error           { return nil }
func (n *noopDecoder) Err() error             { return nil }

func userMessageRequest(text string) *llm.Request {
	return &llm.Request{
		Messages: []*llm.Message{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: text}}},
		},
	}
}

func TestCompleteTranslatesTextResponse(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	client, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), userMessageRequest("hello"))
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "world", resp.Content[0].Parts[0].(llm.TextPart).Text)
	require.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, 5, resp.Usage.OutputTokens)
}

func TestCompleteTranslatesToolUseResponseAndRestoresCanonicalName(t *testing.T) {
	t.Parallel()

	req := userMessageRequest("call the tool")
	req.Tools = []*llm.ToolDefinition{{
		Name:        "search_data_catalog",
		Description: "search the catalog",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}}

	tools, canonToSan, _, err := encodeTools(req.Tools)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	sanitized := canonToSan["search_data_catalog"]
	require.NotEmpty(t, sanitized)

	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{
			Type:  "tool_use",
			Name:  sanitized,
			ID:    "tool-1",
			Input: json.RawMessage(`{"query":"orders"}`),
		}},
		StopReason: sdk.StopReasonToolUse,
	}}
	client, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "search_data_catalog", resp.ToolCalls[0].Name)
	require.Equal(t, "tool-1", resp.ToolCalls[0].ID)
	require.JSONEq(t, `{"query":"orders"}`, string(resp.ToolCalls[0].Payload))
}

func TestCompleteWrapsRateLimitedError(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{err: errors.New("429 rate_limit_error")}
	client, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 64})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), userMessageRequest("hi"))
	require.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestNewRequiresClientAndDefaultModel(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Options{DefaultModel: "x"})
	require.Error(t, err)

	_, err = New(&stubMessagesClient{}, Options{})
	require.Error(t, err)
}

func TestPrepareRequestRejectsEmptyMessages(t *testing.T) {
	t.Parallel()

	client, err := New(&stubMessagesClient{}, Options{DefaultModel: "x", MaxTokens: 64})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &llm.Request{})
	require.Error(t, err)
}

func TestSanitizeToolNameReplacesDisallowedCharactersOnly(t *testing.T) {
	t.Parallel()

	require.Equal(t, "search_data_catalog", sanitizeToolName("search_data_catalog"))
	require.Equal(t, "a_b", sanitizeToolName("a.b"))
}

func TestEncodeToolsRejectsMissingDescription(t *testing.T) {
	t.Parallel()

	_, _, _, err := encodeTools([]*llm.ToolDefinition{{Name: "x", InputSchema: json.RawMessage(`{}`)}})
	require.Error(t, err)
}

func TestEncodeToolChoiceRequiresKnownToolName(t *testing.T) {
	t.Parallel()

	_, err := encodeToolChoice(&llm.ToolChoice{Mode: llm.ToolChoiceTool, Name: "missing"}, nil, nil)
	require.Error(t, err)
}
