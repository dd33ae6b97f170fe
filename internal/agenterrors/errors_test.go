package agenterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsMessageToKind(t *testing.T) {
	t.Parallel()

	err := New(KindNotFound, "")
	require.Equal(t, string(KindNotFound), err.Message)
}

func TestNewfFormatsMessage(t *testing.T) {
	t.Parallel()

	err := Newf(KindSqlInvalid, "bad statement: %d", 3)
	require.Equal(t, "bad statement: 3", err.Message)
}

func TestErrorStringFormat(t *testing.T) {
	t.Parallel()

	err := New(KindSqlUnsafe, "contains DELETE")
	require.Equal(t, "sql_unsafe: contains DELETE", err.Error())
}

func TestNilAgentErrorErrorsToEmptyString(t *testing.T) {
	t.Parallel()

	var err *AgentError
	require.Equal(t, "", err.Error())
}

func TestWithFieldsChainsAndMutatesReceiver(t *testing.T) {
	t.Parallel()

	err := New(KindNotFound, "missing").WithFields(map[string]any{"asset_id": "a1"})
	require.Equal(t, "a1", err.Fields["asset_id"])
}

func TestKindOfReturnsKindForAgentError(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindPermissionDenied, KindOf(PermissionDenied("a1", "editor")))
}

func TestKindOfReturnsEmptyForPlainError(t *testing.T) {
	t.Parallel()

	require.Equal(t, Kind(""), KindOf(errors.New("boom")))
}

func TestKindOfNilErrorReturnsEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, Kind(""), KindOf(nil))
}

func TestFromErrorReturnsSameAgentErrorUnchanged(t *testing.T) {
	t.Parallel()

	ae := NotFound("a1")
	require.Same(t, ae, FromError(ae))
}

func TestFromErrorWrapsPlainErrorAsLLMTransport(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")
	wrapped := FromError(plain)
	require.Equal(t, KindLLMTransport, wrapped.K)
	require.Equal(t, "connection reset", wrapped.Message)
	require.Nil(t, wrapped.Cause)
}

func TestFromErrorNilReturnsNil(t *testing.T) {
	t.Parallel()

	require.Nil(t, FromError(nil))
}

func TestFromErrorPreservesWrappedChain(t *testing.T) {
	t.Parallel()

	inner := errors.New("dial tcp: timeout")
	outer := fmt.Errorf("call llm: %w", inner)

	wrapped := FromError(outer)
	require.Equal(t, KindLLMTransport, wrapped.K)
	require.Equal(t, "call llm: dial tcp: timeout", wrapped.Message)
	require.NotNil(t, wrapped.Cause)
	require.Equal(t, "dial tcp: timeout", wrapped.Cause.Message)
}

func TestWrapKindPreservesCauseAndDefaultsMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("unreachable")
	wrapped := WrapKind(KindLLMTransport, "", cause)
	require.Equal(t, "unreachable", wrapped.Message)
	require.NotNil(t, wrapped.Cause)
	require.Equal(t, "unreachable", wrapped.Cause.Message)
}

func TestUnwrapExposesCauseMessageThroughChain(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	wrapped := WrapKind(KindLLMTransport, "retry failed", sentinel)

	cause := errors.Unwrap(wrapped)
	require.NotNil(t, cause)
	require.Equal(t, "llm_transport: sentinel", cause.Error())
}

func TestUnwrapNilCauseReturnsNil(t *testing.T) {
	t.Parallel()

	err := New(KindNotFound, "missing")
	require.Nil(t, err.Unwrap())
}

func TestInvalidReferenceCarriesFields(t *testing.T) {
	t.Parallel()

	err := InvalidReference("metric", []string{"m1", "m2"})
	require.Equal(t, KindInvalidReference, err.K)
	require.Equal(t, "metric", err.Fields["kind"])
	require.Equal(t, []string{"m1", "m2"}, err.Fields["ids"])
}

func TestVagueReferencesCarriesTablesAndColumns(t *testing.T) {
	t.Parallel()

	err := VagueReferences([]string{"orders"}, nil)
	require.Equal(t, KindVagueReferences, err.K)
	require.Equal(t, []string{"orders"}, err.Fields["tables"])
	require.Nil(t, err.Fields["columns"])
}

func TestModificationMismatchMessageVariesByAmbiguous(t *testing.T) {
	t.Parallel()

	notFound := ModificationMismatch("metric.yml", "old text", false)
	require.Equal(t, "content to replace not found", notFound.Message)

	ambiguous := ModificationMismatch("metric.yml", "old text", true)
	require.Equal(t, "ambiguous modification: content to replace matches more than once", ambiguous.Message)
}

func TestPermissionDeniedMessageAndFields(t *testing.T) {
	t.Parallel()

	err := PermissionDenied("asset-1", "editor")
	require.Contains(t, err.Message, "editor")
	require.Contains(t, err.Message, "asset-1")
	require.Equal(t, "editor", err.Fields["required_role"])
}

func TestLLMTransportCarriesRetryableFlag(t *testing.T) {
	t.Parallel()

	err := LLMTransport(true, "rate limited")
	require.Equal(t, "rate limited", err.Message)
	require.Equal(t, true, err.Fields["retryable"])
}
