// Package artifact defines the Metric/Dashboard artifact shapes, their
// version history, and the permission lattice that gates access to them.
// Persistence lives in subpackages (internal/artifact/mongostore); this
// package holds the types and the pure permission-resolution logic that any
// backing store must honor.
package artifact

import (
	"time"

	"github.com/google/uuid"
)

// Type tags which kind of artifact a row holds.
type Type string

const (
	TypeMetric    Type = "metric"
	TypeDashboard Type = "dashboard"
)

// ChartType enumerates the supported chart_config.selected_chart_type values.
type ChartType string

const (
	ChartBar    ChartType = "bar"
	ChartLine   ChartType = "line"
	ChartScatter ChartType = "scatter"
	ChartPie    ChartType = "pie"
	ChartCombo  ChartType = "combo"
	ChartMetric ChartType = "metric"
	ChartTable  ChartType = "table"
)

// MetricContent is the versioned payload of a Metric artifact.
type MetricContent struct {
	Name        string          `bson:"name" json:"name" yaml:"name"`
	Description string          `bson:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	SQL         string          `bson:"sql" json:"sql" yaml:"sql"`
	TimeFrame   string          `bson:"time_frame" json:"time_frame" yaml:"time_frame"`
	ChartConfig ChartConfig     `bson:"chart_config" json:"chart_config" yaml:"chart_config"`
	DatasetIDs  []uuid.UUID     `bson:"dataset_ids" json:"dataset_ids" yaml:"dataset_ids"`
}

// ChartConfig is a tagged union keyed by SelectedChartType. Only the fields
// relevant to the selected type are expected to be populated; the rest are
// carried as opaque key/value pairs so new chart types do not require a
// schema migration of this struct.
type ChartConfig struct {
	SelectedChartType  ChartType         `bson:"selected_chart_type" json:"selected_chart_type" yaml:"selected_chart_type"`
	ColumnLabelFormats map[string]string `bson:"column_label_formats" json:"column_label_formats" yaml:"column_label_formats"`
	Extra              map[string]any    `bson:"extra,omitempty" json:"extra,omitempty" yaml:"extra,omitempty"`
}

// DashboardItem references one metric placed within a dashboard row.
type DashboardItem struct {
	MetricID uuid.UUID `bson:"id" json:"id" yaml:"id"`
	Width    int       `bson:"width" json:"width" yaml:"width"`
}

// DashboardRow is an ordered list of items laid out left to right.
type DashboardRow struct {
	Items []DashboardItem `bson:"items" json:"items" yaml:"items"`
}

// DashboardContent is the versioned payload of a Dashboard artifact.
type DashboardContent struct {
	Name        string         `bson:"name" json:"name" yaml:"title"`
	Description string         `bson:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	Rows        []DashboardRow `bson:"rows" json:"rows" yaml:"rows"`
}

// VersionSnapshot is one entry in an artifact's version history. Content is
// stored as the marshaled MetricContent/DashboardContent (kept opaque here
// so the store can persist either kind through one shape).
type VersionSnapshot struct {
	VersionNumber int       `bson:"version_number" json:"version_number"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
	Content       any       `bson:"content" json:"content"`
}

// Artifact is the shared envelope for Metric and Dashboard rows.
type Artifact struct {
	ID             uuid.UUID `bson:"_id" json:"id"`
	Type           Type      `bson:"type" json:"type"`
	Name           string    `bson:"name" json:"name"`
	FileName       string    `bson:"file_name" json:"file_name"`
	Content        any       `bson:"content" json:"content"`
	OrganizationID uuid.UUID `bson:"organization_id" json:"organization_id"`
	CreatedBy      uuid.UUID `bson:"created_by" json:"created_by"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	VersionHistory []VersionSnapshot `bson:"version_history" json:"version_history"`

	PubliclyAccessible bool       `bson:"publicly_accessible" json:"publicly_accessible"`
	PublicExpiry       *time.Time `bson:"public_expiry,omitempty" json:"public_expiry,omitempty"`
	PublicPassword     string     `bson:"public_password,omitempty" json:"-"`
}

// IsDeleted reports whether the artifact has been soft-deleted.
func (a *Artifact) IsDeleted() bool { return a.DeletedAt != nil }

// LatestVersion returns the artifact's current version number (1-based).
func (a *Artifact) LatestVersion() int {
	if len(a.VersionHistory) == 0 {
		return 0
	}
	return a.VersionHistory[len(a.VersionHistory)-1].VersionNumber
}

// Role is a position in the asset permission lattice, ordered strongest to
// weakest: owner >= full_access >= can_edit >= can_view.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleFullAccess Role = "full_access"
	RoleCanEdit    Role = "can_edit"
	RoleCanView    Role = "can_view"
	RoleNone       Role = ""
)

var roleRank = map[Role]int{
	RoleOwner:      4,
	RoleFullAccess: 3,
	RoleCanEdit:    2,
	RoleCanView:    1,
	RoleNone:       0,
}

// AtLeast reports whether r is at least as strong as min in the lattice.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// Max returns whichever of a, b is stronger in the lattice.
func Max(a, b Role) Role {
	if roleRank[a] >= roleRank[b] {
		return a
	}
	return b
}

// IdentityType distinguishes user and group/collection grant subjects.
type IdentityType string

const (
	IdentityUser       IdentityType = "user"
	IdentityCollection IdentityType = "collection"
)

// AssetPermission is one grant row: identity (identity_id, identity_type) has
// role on (asset_id, asset_type).
type AssetPermission struct {
	IdentityID   uuid.UUID    `bson:"identity_id" json:"identity_id"`
	IdentityType IdentityType `bson:"identity_type" json:"identity_type"`
	AssetID      uuid.UUID    `bson:"asset_id" json:"asset_id"`
	AssetType    Type         `bson:"asset_type" json:"asset_type"`
	Role         Role         `bson:"role" json:"role"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	CreatedBy    uuid.UUID    `bson:"created_by" json:"created_by"`
}

// MetricToDataset is a versioned cross-reference row: metric version
// version_number used dataset_id.
type MetricToDataset struct {
	MetricID      uuid.UUID `bson:"metric_id" json:"metric_id"`
	DatasetID     uuid.UUID `bson:"dataset_id" json:"dataset_id"`
	VersionNumber int       `bson:"version_number" json:"version_number"`
}

// MetricToDashboard is an unversioned cross-reference row: metric is a
// member of dashboard.
type MetricToDashboard struct {
	MetricID    uuid.UUID  `bson:"metric_id" json:"metric_id"`
	DashboardID uuid.UUID  `bson:"dashboard_id" json:"dashboard_id"`
	DeletedAt   *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// CollectionAsset is a soft-deletable membership row: asset belongs to
// collection.
type CollectionAsset struct {
	CollectionID uuid.UUID  `bson:"collection_id" json:"collection_id"`
	AssetID      uuid.UUID  `bson:"asset_id" json:"asset_id"`
	AssetType    Type       `bson:"asset_type" json:"asset_type"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}
