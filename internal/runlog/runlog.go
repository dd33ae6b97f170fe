// Package runlog provides a durable, append-only event log for conversation
// turns, independent of the ephemeral in-memory state the agent runtime
// keeps in internal/agentstate. It exists purely for observability: nothing
// in the agent loop reads it back to make decisions.
package runlog

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names a conversation lifecycle event.
type EventType string

const (
	EventStarted         EventType = "started"
	EventModeTransition  EventType = "mode_transition"
	EventToolCall        EventType = "tool_call"
	EventArtifactUpdate  EventType = "artifact_update"
	EventClarifyQuestion EventType = "clarify_question"
	EventDone            EventType = "done"
	EventError           EventType = "error"
)

// Event is a single immutable conversation event appended to the run log.
//
// Store implementations assign ID when persisting the event. IDs are
// opaque, monotonically ordered within a conversation, and suitable for
// cursor-based pagination.
type Event struct {
	// ID is the store-assigned opaque identifier for this event.
	ID string
	// ConversationID identifies the conversation (spec's Agent/session) this
	// event belongs to.
	ConversationID string
	// TurnID identifies the loop iteration within the conversation.
	TurnID string
	// Type is the lifecycle event type.
	Type EventType
	// Payload is the canonical JSON-encoded payload for the event.
	Payload json.RawMessage
	// Timestamp is the event time.
	Timestamp time.Time
}

// Page is a forward page of conversation events.
type Page struct {
	// Events are ordered oldest-first.
	Events []*Event
	// NextCursor is the cursor to use to fetch the next page. It is empty
	// when there are no further events.
	NextCursor string
}

// Store is an append-only event store for conversation introspection.
//
// Implementations must provide stable ordering within a conversation.
// Cursor values are store-owned and opaque to callers.
type Store interface {
	// Append stores the event in the run log. Store implementations assign
	// the event ID and persist the payload verbatim.
	Append(ctx context.Context, e *Event) error

	// List returns the next forward page of events for the given
	// conversation ID. Cursor is an opaque value returned by a previous
	// call to List, or empty to start from the beginning. Limit must be
	// greater than zero.
	List(ctx context.Context, conversationID string, cursor string, limit int) (Page, error)
}
