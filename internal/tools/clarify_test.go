package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

func TestMessageUserClarifyingQuestionReturnsQuestionVerbatim(t *testing.T) {
	t.Parallel()

	tool := MessageUserClarifyingQuestion{}
	require.Equal(t, NameMessageUserClarifyingQuestion, tool.Name())
	require.True(t, tool.Enabled(nil))

	params, _ := json.Marshal(clarifyingQuestionParams{Question: "which dataset do you mean?"})
	result := tool.Execute(context.Background(), params, "call-1", nil)
	require.True(t, result.OK)

	content := result.Content.(map[string]any)
	require.Equal(t, "which dataset do you mean?", content["question"])
}

func TestMessageUserClarifyingQuestionMalformedArgumentsFails(t *testing.T) {
	t.Parallel()

	tool := MessageUserClarifyingQuestion{}
	result := tool.Execute(context.Background(), []byte("not json"), "call-1", nil)
	require.False(t, result.OK)
	require.Equal(t, "invalid_yaml", result.Error.Kind)
}

func TestKindOfPreservesStructuredKindAndFallsBackToLLMTransport(t *testing.T) {
	t.Parallel()

	structured := agenterrors.New(agenterrors.KindSqlUnsafe, "write detected")
	require.Equal(t, agenterrors.KindSqlUnsafe, kindOf(structured))

	require.Equal(t, agenterrors.KindLLMTransport, kindOf(errors.New("plain error")))
}
