// Package agenterrors provides the structured tool-failure kinds from the
// error handling design: every error a tool executor returns is a tagged
// value, never an opaque string, so the runtime and the caller can both
// classify failures.
package agenterrors

import (
	"errors"
	"fmt"
)

// Kind tags the category of an AgentError.
type Kind string

const (
	KindInvalidYaml           Kind = "invalid_yaml"
	KindInvalidReference      Kind = "invalid_reference"
	KindSqlUnsafe             Kind = "sql_unsafe"
	KindSqlInvalid            Kind = "sql_invalid"
	KindVagueReferences       Kind = "vague_references"
	KindPermissionDenied      Kind = "permission_denied"
	KindNotFound              Kind = "not_found"
	KindLLMTransport          Kind = "llm_transport"
	KindModificationMismatch  Kind = "modification_mismatch"
)

// AgentError is a structured tool failure that preserves message and causal
// context while implementing the standard error interface, so callers can
// still use errors.Is/As across retries. Causes that are not already an
// *AgentError are converted by FromError, so errors.Is does not match the
// original non-AgentError value through the chain.
type AgentError struct {
	K       Kind
	Message string
	Cause   *AgentError

	// Fields carries kind-specific structured detail (e.g. the missing ids for
	// InvalidReference, or the offending table/column names for
	// VagueReferences).
	Fields map[string]any
}

// New constructs an AgentError of the given kind.
func New(kind Kind, message string) *AgentError {
	if message == "" {
		message = string(kind)
	}
	return &AgentError{K: kind, Message: message}
}

// Newf formats a message for the given kind.
func Newf(kind Kind, format string, args ...any) *AgentError {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithFields attaches structured detail and returns the same error for
// chaining at the construction site.
func (e *AgentError) WithFields(fields map[string]any) *AgentError {
	e.Fields = fields
	return e
}

// WrapKind converts an arbitrary error into an AgentError of the given kind,
// keeping the cause, converted through FromError, as Cause.
func WrapKind(kind Kind, message string, cause error) *AgentError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &AgentError{K: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an AgentError chain. Errors that
// are already an *AgentError are returned unchanged.
func FromError(err error) *AgentError {
	if err == nil {
		return nil
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae
	}
	return &AgentError{K: KindLLMTransport, Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// KindOf returns the error's kind, or "" if err is not an *AgentError.
func KindOf(err error) Kind {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.K
	}
	return ""
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.K, e.Message)
}

// Unwrap supports errors.Is/As across an error chain.
func (e *AgentError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// InvalidReference builds the InvalidReference error for missing metric or
// dataset ids.
func InvalidReference(kind string, ids []string) *AgentError {
	return New(KindInvalidReference, fmt.Sprintf("invalid %s references: %v", kind, ids)).
		WithFields(map[string]any{"kind": kind, "ids": ids})
}

// VagueReferences builds the VagueReferences error for unqualified table or
// column names.
func VagueReferences(tables, columns []string) *AgentError {
	return New(KindVagueReferences, "query contains unqualified table or column references").
		WithFields(map[string]any{"tables": tables, "columns": columns})
}

// ModificationMismatch builds the error for §4.2.5 step 3 (zero or multiple
// matches for a content_to_replace span).
func ModificationMismatch(fileName, contentToReplace string, ambiguous bool) *AgentError {
	msg := "content to replace not found"
	if ambiguous {
		msg = "ambiguous modification: content to replace matches more than once"
	}
	return New(KindModificationMismatch, msg).
		WithFields(map[string]any{"file_name": fileName, "content_to_replace": contentToReplace, "ambiguous": ambiguous})
}

// PermissionDenied builds the PermissionDenied error.
func PermissionDenied(assetID, requiredRole string) *AgentError {
	return New(KindPermissionDenied, fmt.Sprintf("caller lacks %s on asset %s", requiredRole, assetID)).
		WithFields(map[string]any{"asset_id": assetID, "required_role": requiredRole})
}

// NotFound builds the NotFound error.
func NotFound(assetID string) *AgentError {
	return New(KindNotFound, fmt.Sprintf("asset %s not found", assetID)).
		WithFields(map[string]any{"asset_id": assetID})
}

// LLMTransport builds the LLMTransport error.
func LLMTransport(retryable bool, detail string) *AgentError {
	return New(KindLLMTransport, detail).WithFields(map[string]any{"retryable": retryable})
}
