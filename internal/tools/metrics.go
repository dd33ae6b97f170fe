package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/artifact"
	"github.com/dataplane-ai/analyst-agent/internal/artifact/schema"
	"github.com/dataplane-ai/analyst-agent/internal/concurrency"
	"github.com/dataplane-ai/analyst-agent/internal/sqlsafety"
)

var filesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"files": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"yml_content": {"type": "string"}
				},
				"required": ["name", "yml_content"]
			}
		}
	},
	"required": ["files"]
}`)

type createFilesParams struct {
	Files []createFileParam `json:"files"`
}

type createFileParam struct {
	Name       string `json:"name"`
	YMLContent string `json:"yml_content"`
}

type fileOutcome struct {
	FileName string `json:"file_name"`
	ID       string `json:"id,omitempty"`
	Error    *Error `json:"error,omitempty"`
}

// CreateMetrics implements §4.2.3.
type CreateMetrics struct {
	Store artifact.Store
	Pool  *concurrency.Pool
}

func (CreateMetrics) Name() string { return NameCreateMetrics }

func (CreateMetrics) Schema() json.RawMessage { return filesSchema }

func (CreateMetrics) Enabled(bag *agentstate.Bag) bool { return true }

func (t CreateMetrics) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p createFilesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed create_metrics arguments: "+err.Error(), nil)
	}
	dialect := sqlsafety.Dialect(dataSourceSyntaxOrDefault(ctx))

	outcomes := concurrency.Run(ctx, t.Pool, p.Files, func(ctx context.Context, _ int, f createFileParam) fileOutcome {
		return t.createOne(ctx, toolCallID, f, dialect)
	})

	anySuccess := false
	for _, o := range outcomes {
		if o.Error == nil {
			anySuccess = true
		}
	}
	return Result{OK: true, Content: map[string]any{"files": outcomes, "any_success": anySuccess}}
}

func (t CreateMetrics) createOne(ctx context.Context, toolCallID string, f createFileParam, dialect sqlsafety.Dialect) fileOutcome {
	if err := schema.ValidateMetricYAML(f.YMLContent); err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	var content artifact.MetricContent
	if err := yaml.Unmarshal([]byte(f.YMLContent), &content); err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}

	if err := sqlsafety.Validate(content.SQL, dialect); err != nil {
		return fileOutcome{FileName: f.Name, Error: toToolError(err)}
	}
	analysis, err := sqlsafety.Analyze(content.SQL)
	if err != nil {
		return fileOutcome{FileName: f.Name, Error: toToolError(err)}
	}
	if err := artifact.RequiredColumnLabelFormats(content.ChartConfig, analysis.Columns); err != nil {
		return fileOutcome{FileName: f.Name, Error: toToolError(err)}
	}

	id := DeterministicID(toolCallID, f.Name, string(artifact.TypeMetric))
	now := time.Now().UTC()
	a := &artifact.Artifact{
		ID:             id,
		Type:           artifact.TypeMetric,
		Name:           content.Name,
		FileName:       f.Name,
		Content:        content,
		OrganizationID: OrgID(ctx),
		CreatedBy:      UserID(ctx),
		CreatedAt:      now,
		UpdatedAt:      now,
		VersionHistory: []artifact.VersionSnapshot{{VersionNumber: 1, UpdatedAt: now, Content: content}},
	}
	if err := t.Store.InsertMetric(ctx, a, content.DatasetIDs, UserID(ctx)); err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	return fileOutcome{FileName: f.Name, ID: id.String()}
}

// StateEffect applies §4.2.3's "on any success" state transitions.
func (t CreateMetrics) StateEffect(result Result) map[string]any {
	content, ok := result.Content.(map[string]any)
	if !ok || content["any_success"] != true {
		return nil
	}
	return map[string]any{
		agentstate.KeyMetricsAvailable: true,
		agentstate.KeyFilesAvailable:   true,
		agentstate.KeyReviewNeeded:     true,
	}
}

// UpdateMetrics implements §4.2.5 for metrics.
type UpdateMetrics struct {
	Store artifact.Store
	Pool  *concurrency.Pool
}

func (UpdateMetrics) Name() string { return NameUpdateMetrics }

func (UpdateMetrics) Schema() json.RawMessage { return updateFilesSchema }

func (UpdateMetrics) Enabled(bag *agentstate.Bag) bool { return true }

func (t UpdateMetrics) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p updateFilesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed update_metrics arguments: "+err.Error(), nil)
	}
	dialect := sqlsafety.Dialect(dataSourceSyntaxOrDefault(ctx))

	outcomes := concurrency.Run(ctx, t.Pool, p.Files, func(ctx context.Context, _ int, f updateFileParam) fileOutcome {
		return t.updateOne(ctx, f, dialect)
	})
	anySuccess := false
	for _, o := range outcomes {
		if o.Error == nil {
			anySuccess = true
		}
	}
	return Result{OK: true, Content: map[string]any{"files": outcomes, "any_success": anySuccess}}
}

func (t UpdateMetrics) updateOne(ctx context.Context, f updateFileParam, dialect sqlsafety.Dialect) fileOutcome {
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_reference", Message: "malformed metric id"}}
	}

	a, role, err := t.Store.GetWithPermission(ctx, id, UserID(ctx), "")
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	if a == nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "not_found", Message: "metric not found"}}
	}
	if !role.AtLeast(artifact.RoleCanEdit) {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "permission_denied", Message: "caller lacks can_edit"}}
	}

	current, ok := a.Content.(artifact.MetricContent)
	if !ok {
		current, err = decodeMetricContent(a.Content)
		if err != nil {
			return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
		}
	}
	text, err := marshalCanonical(current)
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}

	newText, err := applyModifications(text, f.Modifications)
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: toToolError(err)}
	}

	if err := schema.ValidateMetricYAML(newText); err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	var newContent artifact.MetricContent
	if err := yaml.Unmarshal([]byte(newText), &newContent); err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	if err := sqlsafety.Validate(newContent.SQL, dialect); err != nil {
		return fileOutcome{FileName: f.FileName, Error: toToolError(err)}
	}
	analysis, err := sqlsafety.Analyze(newContent.SQL)
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: toToolError(err)}
	}
	if err := artifact.RequiredColumnLabelFormats(newContent.ChartConfig, analysis.Columns); err != nil {
		return fileOutcome{FileName: f.FileName, Error: toToolError(err)}
	}

	if _, err := t.Store.UpdateContent(ctx, id, newContent, newContent.DatasetIDs); err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	return fileOutcome{FileName: f.FileName, ID: id.String()}
}

// StateEffect mirrors CreateMetrics.StateEffect: a successful modification
// sets review_needed again so the mode loop returns to review.
func (t UpdateMetrics) StateEffect(result Result) map[string]any {
	content, ok := result.Content.(map[string]any)
	if !ok || content["any_success"] != true {
		return nil
	}
	return map[string]any{agentstate.KeyReviewNeeded: true}
}

func toToolError(err error) *Error {
	return &Error{Kind: string(kindOf(err)), Message: err.Error()}
}

func dataSourceSyntaxOrDefault(ctx context.Context) string {
	if s := ctx.Value(ctxKeyDataSourceSyntax); s != nil {
		if str, ok := s.(string); ok && str != "" {
			return str
		}
	}
	return string(sqlsafety.DialectGeneric)
}

func marshalCanonical(v any) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal canonical content: %w", err)
	}
	return string(b), nil
}

// decodeMetricContent recovers a typed MetricContent from whatever the store
// handed back for an any-typed content field. A real Mongo-backed store
// decodes it into a bson.D rather than MetricContent, so the round-trip has
// to go back through bson (matching the bson struct tags already on
// MetricContent) rather than yaml, which would marshal bson.D's own Key/Value
// shape instead of a keyed document.
func decodeMetricContent(v any) (artifact.MetricContent, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return artifact.MetricContent{}, fmt.Errorf("marshal stored metric content: %w", err)
	}
	var c artifact.MetricContent
	if err := bson.Unmarshal(b, &c); err != nil {
		return artifact.MetricContent{}, fmt.Errorf("unmarshal stored metric content: %w", err)
	}
	return c, nil
}
