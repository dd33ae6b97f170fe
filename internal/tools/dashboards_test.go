package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"

	"github.com/dataplane-ai/analyst-agent/internal/artifact"
	"github.com/dataplane-ai/analyst-agent/internal/concurrency"
)

func validDashboardFileYAML(metricA, metricB uuid.UUID) string {
	return "title: Revenue Overview\nrows:\n  - items:\n" +
		"      - id: \"" + metricA.String() + "\"\n        width: 6\n" +
		"      - id: \"" + metricB.String() + "\"\n        width: 6\n"
}

func seedDashboardArtifact(id uuid.UUID, ymlContent string) *artifact.Artifact {
	var content artifact.DashboardContent
	_ = yaml.Unmarshal([]byte(ymlContent), &content)
	now := time.Now().UTC()
	return &artifact.Artifact{
		ID:             id,
		Type:           artifact.TypeDashboard,
		Name:           content.Name,
		FileName:       "overview.yml",
		Content:        content,
		VersionHistory: []artifact.VersionSnapshot{{VersionNumber: 1, UpdatedAt: now, Content: content}},
	}
}

func TestCreateDashboardsPersistsWhenAllMetricsKnown(t *testing.T) {
	t.Parallel()

	metricA, metricB := uuid.New(), uuid.New()
	store := newFakeStore()
	store.markKnown(metricA, metricB)

	tool := CreateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(createFilesParams{Files: []createFileParam{
		{Name: "overview.yml", YMLContent: validDashboardFileYAML(metricA, metricB)},
	}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	require.True(t, result.OK)
	content := result.Content.(map[string]any)
	require.Equal(t, true, content["any_success"])
	require.Len(t, store.artifacts, 1)
}

func TestCreateDashboardsRejectsUnknownMetricReference(t *testing.T) {
	t.Parallel()

	metricA, metricB := uuid.New(), uuid.New()
	store := newFakeStore()
	store.markKnown(metricA) // metricB left unknown

	tool := CreateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(createFilesParams{Files: []createFileParam{
		{Name: "overview.yml", YMLContent: validDashboardFileYAML(metricA, metricB)},
	}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	content := result.Content.(map[string]any)
	outcomes := content["files"].([]fileOutcome)
	require.Equal(t, "invalid_reference", outcomes[0].Error.Kind)
	require.Empty(t, store.artifacts)
}

func TestCreateDashboardsRejectsInvalidLayout(t *testing.T) {
	t.Parallel()

	metricA := uuid.New()
	yml := "title: Too Wide\nrows:\n  - items:\n" +
		"      - id: \"" + metricA.String() + "\"\n        width: 2\n"

	store := newFakeStore()
	store.markKnown(metricA)
	tool := CreateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(createFilesParams{Files: []createFileParam{{Name: "bad.yml", YMLContent: yml}}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	content := result.Content.(map[string]any)
	require.Equal(t, false, content["any_success"])
}

func TestCreateDashboardsMalformedArgumentsFails(t *testing.T) {
	t.Parallel()

	tool := CreateDashboards{Store: newFakeStore(), Pool: concurrency.NewPool(2)}
	result := tool.Execute(callerCtx(), []byte("not json"), "call-1", nil)
	require.False(t, result.OK)
	require.Equal(t, "invalid_yaml", result.Error.Kind)
}

func TestCreateDashboardsStateEffectSetsFlagsOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	tool := CreateDashboards{}
	require.Nil(t, tool.StateEffect(Ok(map[string]any{"any_success": false})))

	effect := tool.StateEffect(Ok(map[string]any{"any_success": true}))
	require.Equal(t, true, effect["review_needed"])
	require.Equal(t, true, effect["dashboards_available"])
}

func TestUpdateDashboardsAppliesModificationAndRevalidatesMetricRefs(t *testing.T) {
	t.Parallel()

	metricA, metricB := uuid.New(), uuid.New()
	store := newFakeStore()
	store.markKnown(metricA, metricB)
	id := uuid.New()
	store.artifacts[id] = seedDashboardArtifact(id, validDashboardFileYAML(metricA, metricB))

	tool := UpdateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(updateFilesParams{Files: []updateFileParam{{
		ID:       id.String(),
		FileName: "overview.yml",
		Modifications: []modification{
			{ContentToReplace: "Revenue Overview", NewContent: "Revenue Overview v2"},
		},
	}}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	require.True(t, result.OK)
	content := result.Content.(map[string]any)
	require.Equal(t, true, content["any_success"])
}

// TestUpdateDashboardsDecodesBSONDocumentContent reproduces what the real
// Mongo store hands back for an any-typed content field: a bson.D rather
// than a live DashboardContent.
func TestUpdateDashboardsDecodesBSONDocumentContent(t *testing.T) {
	t.Parallel()

	metricA, metricB := uuid.New(), uuid.New()
	var typed artifact.DashboardContent
	require.NoError(t, yaml.Unmarshal([]byte(validDashboardFileYAML(metricA, metricB)), &typed))
	raw, err := bson.Marshal(typed)
	require.NoError(t, err)
	var asDoc bson.D
	require.NoError(t, bson.Unmarshal(raw, &asDoc))

	store := newFakeStore()
	store.markKnown(metricA, metricB)
	id := uuid.New()
	a := seedDashboardArtifact(id, validDashboardFileYAML(metricA, metricB))
	a.Content = asDoc
	store.artifacts[id] = a

	tool := UpdateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(updateFilesParams{Files: []updateFileParam{{
		ID:       id.String(),
		FileName: "overview.yml",
		Modifications: []modification{
			{ContentToReplace: "Revenue Overview", NewContent: "Revenue Overview v2"},
		},
	}}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	require.True(t, result.OK)
	content := result.Content.(map[string]any)
	outcomes := content["files"].([]fileOutcome)
	require.Nil(t, outcomes[0].Error)
	require.Equal(t, true, content["any_success"])
}

func TestUpdateDashboardsRejectsNotFound(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	tool := UpdateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(updateFilesParams{Files: []updateFileParam{{ID: uuid.New().String(), FileName: "a.yml"}}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	content := result.Content.(map[string]any)
	outcomes := content["files"].([]fileOutcome)
	require.Equal(t, "not_found", outcomes[0].Error.Kind)
}

func TestUpdateDashboardsRejectsInsufficientRole(t *testing.T) {
	t.Parallel()

	metricA, metricB := uuid.New(), uuid.New()
	store := newFakeStore()
	store.markKnown(metricA, metricB)
	id := uuid.New()
	store.artifacts[id] = seedDashboardArtifact(id, validDashboardFileYAML(metricA, metricB))
	store.roles[id] = artifact.RoleCanView

	tool := UpdateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(updateFilesParams{Files: []updateFileParam{{
		ID:            id.String(),
		FileName:      "overview.yml",
		Modifications: []modification{{ContentToReplace: "Revenue Overview", NewContent: "x"}},
	}}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	content := result.Content.(map[string]any)
	outcomes := content["files"].([]fileOutcome)
	require.Equal(t, "permission_denied", outcomes[0].Error.Kind)
}

func TestUpdateDashboardsRejectsMalformedID(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	tool := UpdateDashboards{Store: store, Pool: concurrency.NewPool(2)}
	params, _ := json.Marshal(updateFilesParams{Files: []updateFileParam{{ID: "not-a-uuid", FileName: "a.yml"}}})

	result := tool.Execute(callerCtx(), params, "call-1", nil)
	content := result.Content.(map[string]any)
	outcomes := content["files"].([]fileOutcome)
	require.Equal(t, "invalid_reference", outcomes[0].Error.Kind)
}
