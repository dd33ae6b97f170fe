package artifact

import (
	"context"

	"github.com/google/uuid"
)

// Store is the artifact persistence contract from §4.4. Implementations
// (internal/artifact/mongostore) must uphold the versioning and soft-delete
// invariants documented on Artifact and VersionSnapshot.
type Store interface {
	InsertMetric(ctx context.Context, a *Artifact, datasetIDs []uuid.UUID, ownerID uuid.UUID) error
	InsertDashboard(ctx context.Context, a *Artifact, metricIDs []uuid.UUID, ownerID uuid.UUID) error

	// GetWithPermission fetches an asset along with the requesting user's
	// effective role, per §4.4's resolution order. effectiveRole is RoleNone
	// when the user has no access at all (including failed public-link
	// attempts).
	GetWithPermission(ctx context.Context, id uuid.UUID, userID uuid.UUID, publicPassword string) (*Artifact, Role, error)

	// UpdateContent appends a new version snapshot and returns its version
	// number. newDatasetIDs/newMetricIDs replace the asset's current
	// cross-reference edges (metric->dataset is versioned per §4.4; metric
	// <->dashboard is not).
	UpdateContent(ctx context.Context, id uuid.UUID, newContent any, newDatasetIDs []uuid.UUID) (int, error)
	UpdateDashboardContent(ctx context.Context, id uuid.UUID, newContent any, newMetricIDs []uuid.UUID) (int, error)

	SoftDelete(ctx context.Context, id uuid.UUID) error

	ListByOrganization(ctx context.Context, orgID uuid.UUID, t Type) ([]*Artifact, error)

	// ValidateMetricIDs returns the subset of ids that do not correspond to
	// an existing, non-deleted metric, for §4.2.4's InvalidReference check.
	ValidateMetricIDs(ctx context.Context, ids []uuid.UUID) (missing []uuid.UUID, err error)

	// ValidateDatasetIDs returns the subset of ids that are unknown.
	ValidateDatasetIDs(ctx context.Context, ids []uuid.UUID) (missing []uuid.UUID, err error)
}
