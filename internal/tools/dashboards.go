package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/artifact"
	"github.com/dataplane-ai/analyst-agent/internal/artifact/schema"
	"github.com/dataplane-ai/analyst-agent/internal/concurrency"
)

// CreateDashboards implements §4.2.4.
type CreateDashboards struct {
	Store artifact.Store
	Pool  *concurrency.Pool
}

func (CreateDashboards) Name() string { return NameCreateDashboards }

func (CreateDashboards) Schema() json.RawMessage { return filesSchema }

func (CreateDashboards) Enabled(bag *agentstate.Bag) bool { return true }

func (t CreateDashboards) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p createFilesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed create_dashboards arguments: "+err.Error(), nil)
	}

	outcomes := concurrency.Run(ctx, t.Pool, p.Files, func(ctx context.Context, _ int, f createFileParam) fileOutcome {
		return t.createOne(ctx, toolCallID, f)
	})
	anySuccess := false
	for _, o := range outcomes {
		if o.Error == nil {
			anySuccess = true
		}
	}
	return Result{OK: true, Content: map[string]any{"files": outcomes, "any_success": anySuccess}}
}

func (t CreateDashboards) createOne(ctx context.Context, toolCallID string, f createFileParam) fileOutcome {
	if err := schema.ValidateDashboardYAML(f.YMLContent); err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	var content artifact.DashboardContent
	if err := yaml.Unmarshal([]byte(f.YMLContent), &content); err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	if err := artifact.ValidateDashboardLayout(content.Rows); err != nil {
		return fileOutcome{FileName: f.Name, Error: toToolError(err)}
	}

	metricIDs := collectMetricIDs(content.Rows)
	missing, err := t.Store.ValidateMetricIDs(ctx, metricIDs)
	if err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for _, id := range missing {
			ids = append(ids, id.String())
		}
		return fileOutcome{FileName: f.Name, Error: toToolError(agenterrors.InvalidReference("metric", ids))}
	}

	id := DeterministicID(toolCallID, f.Name, string(artifact.TypeDashboard))
	now := time.Now().UTC()
	a := &artifact.Artifact{
		ID:             id,
		Type:           artifact.TypeDashboard,
		Name:           content.Name,
		FileName:       f.Name,
		Content:        content,
		OrganizationID: OrgID(ctx),
		CreatedBy:      UserID(ctx),
		CreatedAt:      now,
		UpdatedAt:      now,
		VersionHistory: []artifact.VersionSnapshot{{VersionNumber: 1, UpdatedAt: now, Content: content}},
	}
	if err := t.Store.InsertDashboard(ctx, a, metricIDs, UserID(ctx)); err != nil {
		return fileOutcome{FileName: f.Name, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	return fileOutcome{FileName: f.Name, ID: id.String()}
}

// StateEffect applies §4.2.4's "on success" state transitions.
func (t CreateDashboards) StateEffect(result Result) map[string]any {
	content, ok := result.Content.(map[string]any)
	if !ok || content["any_success"] != true {
		return nil
	}
	return map[string]any{
		agentstate.KeyDashboardsAvailable: true,
		agentstate.KeyFilesAvailable:      true,
		agentstate.KeyReviewNeeded:        true,
	}
}

// UpdateDashboards implements §4.2.5 for dashboards.
type UpdateDashboards struct {
	Store artifact.Store
	Pool  *concurrency.Pool
}

func (UpdateDashboards) Name() string { return NameUpdateDashboards }

func (UpdateDashboards) Schema() json.RawMessage { return updateFilesSchema }

func (UpdateDashboards) Enabled(bag *agentstate.Bag) bool { return true }

func (t UpdateDashboards) Execute(ctx context.Context, params json.RawMessage, toolCallID string, emit ArtifactEmitter) Result {
	var p updateFilesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return Fail("invalid_yaml", "malformed update_dashboards arguments: "+err.Error(), nil)
	}
	outcomes := concurrency.Run(ctx, t.Pool, p.Files, func(ctx context.Context, _ int, f updateFileParam) fileOutcome {
		return t.updateOne(ctx, f)
	})
	anySuccess := false
	for _, o := range outcomes {
		if o.Error == nil {
			anySuccess = true
		}
	}
	return Result{OK: true, Content: map[string]any{"files": outcomes, "any_success": anySuccess}}
}

func (t UpdateDashboards) updateOne(ctx context.Context, f updateFileParam) fileOutcome {
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_reference", Message: "malformed dashboard id"}}
	}
	a, role, err := t.Store.GetWithPermission(ctx, id, UserID(ctx), "")
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	if a == nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "not_found", Message: "dashboard not found"}}
	}
	if !role.AtLeast(artifact.RoleCanEdit) {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "permission_denied", Message: "caller lacks can_edit"}}
	}

	current, ok := a.Content.(artifact.DashboardContent)
	if !ok {
		current, err = decodeDashboardContent(a.Content)
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

	if err := schema.ValidateDashboardYAML(newText); err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	var newContent artifact.DashboardContent
	if err := yaml.Unmarshal([]byte(newText), &newContent); err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "invalid_yaml", Message: err.Error()}}
	}
	if err := artifact.ValidateDashboardLayout(newContent.Rows); err != nil {
		return fileOutcome{FileName: f.FileName, Error: toToolError(err)}
	}
	metricIDs := collectMetricIDs(newContent.Rows)
	missing, err := t.Store.ValidateMetricIDs(ctx, metricIDs)
	if err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for _, mid := range missing {
			ids = append(ids, mid.String())
		}
		return fileOutcome{FileName: f.FileName, Error: toToolError(agenterrors.InvalidReference("metric", ids))}
	}

	if _, err := t.Store.UpdateDashboardContent(ctx, id, newContent, metricIDs); err != nil {
		return fileOutcome{FileName: f.FileName, Error: &Error{Kind: "llm_transport", Message: err.Error()}}
	}
	return fileOutcome{FileName: f.FileName, ID: id.String()}
}

func (t UpdateDashboards) StateEffect(result Result) map[string]any {
	content, ok := result.Content.(map[string]any)
	if !ok || content["any_success"] != true {
		return nil
	}
	return map[string]any{agentstate.KeyReviewNeeded: true}
}

func collectMetricIDs(rows []artifact.DashboardRow) []uuid.UUID {
	var ids []uuid.UUID
	for _, row := range rows {
		for _, item := range row.Items {
			ids = append(ids, item.MetricID)
		}
	}
	return ids
}

// decodeDashboardContent mirrors decodeMetricContent: a real Mongo store
// hands back the any-typed content field as a bson.D, so recovering
// DashboardContent has to round-trip through bson, not yaml.
func decodeDashboardContent(v any) (artifact.DashboardContent, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return artifact.DashboardContent{}, fmt.Errorf("marshal stored dashboard content: %w", err)
	}
	var c artifact.DashboardContent
	if err := bson.Unmarshal(b, &c); err != nil {
		return artifact.DashboardContent{}, fmt.Errorf("unmarshal stored dashboard content: %w", err)
	}
	return c, nil
}
