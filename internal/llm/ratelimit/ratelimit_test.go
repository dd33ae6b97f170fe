package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

type fakeClient struct {
	completeErr error
	calls       int
}

func (f *fakeClient) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	f.calls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &llm.Response{}, nil
}

func (f *fakeClient) Stream(_ context.Context, _ *llm.Request) (llm.Streamer, error) {
	return nil, nil
}

func TestNewDefaultsInitialTPMWhenNonPositive(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 0, 0)
	require.Equal(t, float64(60000), l.currentTPM)
	require.Equal(t, float64(60000), l.maxTPM)
}

func TestNewClampsMaxTPMToAtLeastInitial(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 1000, 500)
	require.Equal(t, float64(1000), l.maxTPM)
}

func TestNewWithoutRedisStaysProcessLocal(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "some-key", 1000, 2000)
	require.Nil(t, l.redis)
	require.Equal(t, float64(1000), l.currentTPM)
}

func TestWrapNilClientReturnsNil(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 0, 0)
	require.Nil(t, l.Wrap(nil))
}

func TestWrapDelegatesAndProbesOnSuccess(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 1000, 2000)
	fc := &fakeClient{}
	wrapped := l.Wrap(fc)

	_, err := wrapped.Complete(context.Background(), &llm.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, fc.calls)
	require.Greater(t, l.currentTPM, float64(1000))
}

func TestWrapBacksOffOnRateLimitError(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 1000, 2000)
	fc := &fakeClient{completeErr: llm.ErrRateLimited}
	wrapped := l.Wrap(fc)

	_, err := wrapped.Complete(context.Background(), &llm.Request{})
	require.ErrorIs(t, err, llm.ErrRateLimited)
	require.Equal(t, float64(500), l.currentTPM)
}

func TestWrapIgnoresNonRateLimitErrors(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 1000, 2000)
	fc := &fakeClient{completeErr: errors.New("boom")}
	wrapped := l.Wrap(fc)

	_, err := wrapped.Complete(context.Background(), &llm.Request{})
	require.Error(t, err)
	require.Equal(t, float64(1000), l.currentTPM, "a non-rate-limit error neither backs off nor probes")
}

func TestBackoffNeverGoesBelowMinTPM(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 1000, 2000)
	for i := 0; i < 10; i++ {
		l.backoff(context.Background())
	}
	require.GreaterOrEqual(t, l.currentTPM, l.minTPM)
}

func TestProbeNeverExceedsMaxTPM(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), nil, "", 1000, 1100)
	for i := 0; i < 10; i++ {
		l.probe(context.Background())
	}
	require.Equal(t, l.maxTPM, l.currentTPM)
}

func TestEstimateTokensCountsTextAndToolResultContent(t *testing.T) {
	t.Parallel()

	req := &llm.Request{Messages: []*llm.Message{
		{Parts: []llm.Part{llm.TextPart{Text: "123456789"}}},
		{Parts: []llm.Part{llm.ToolResultPart{Content: "abcdef"}}},
	}}
	// 15 chars -> 15/3 = 5 tokens, plus the fixed 500-token framing buffer.
	require.Equal(t, 505, estimateTokens(req))
}

func TestEstimateTokensFallsBackToFlatDefaultWhenEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, 500, estimateTokens(&llm.Request{}))
}

func TestEstimateTokensSkipsNilMessagesAndNonStringToolResults(t *testing.T) {
	t.Parallel()

	req := &llm.Request{Messages: []*llm.Message{
		nil,
		{Parts: []llm.Part{llm.ToolResultPart{Content: 42}}},
	}}
	require.Equal(t, 500, estimateTokens(req))
}
