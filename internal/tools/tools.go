// Package tools implements the §4.2 tool executors: catalog search,
// planning, metric/dashboard create and modify, done, and the clarifying
// question terminator.
package tools

import (
	"context"
	"encoding/json"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
)

// Result is a tool executor's outcome, serialized back into the
// conversation as the content of a `tool` message (§4.1 step 4).
type Result struct {
	OK      bool   `json:"ok"`
	Content any    `json:"content,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error mirrors one of the tagged kinds from §7, so the LLM sees a
// structured reason rather than an opaque string.
type Error struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Ok builds a successful Result.
func Ok(content any) Result { return Result{OK: true, Content: content} }

// Fail builds a failed Result from a structured error.
func Fail(kind, message string, fields map[string]any) Result {
	return Result{OK: false, Error: &Error{Kind: kind, Message: message, Fields: fields}}
}

// ArtifactEmitter lets an executor publish intermediate ArtifactUpdate
// events while it runs, per §4.2's "may emit intermediate stream events via
// the agent handle".
type ArtifactEmitter interface {
	EmitArtifactUpdate(update any)
}

// Executor is the capability every tool shares: a stable name, a JSON
// schema for its parameters, an enabled predicate over the state bag, and
// an execute function. Tools are a dispatch table keyed by name rather than
// a class hierarchy (§9).
type Executor interface {
	Name() string
	Schema() json.RawMessage
	Enabled(bag *agentstate.Bag) bool
	Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result
}

// Names of every tool defined by §4.2. internal/mode lists the same names as
// string literals rather than through these constants.
const (
	NameSearchDataCatalog           = "search_data_catalog"
	NameCreatePlanStraightforward   = "create_plan_straightforward"
	NameCreatePlanInvestigative     = "create_plan_investigative"
	NameCreateMetrics               = "create_metrics"
	NameCreateDashboards            = "create_dashboards"
	NameUpdateMetrics               = "update_metrics"
	NameUpdateDashboards            = "update_dashboards"
	NameDone                        = "done"
	NameMessageUserClarifyingQuestion = "message_user_clarifying_question"
)
