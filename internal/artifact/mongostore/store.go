// Package mongostore implements artifact.Store against MongoDB. It follows
// the thin collection-wrapper-interface pattern used elsewhere in this
// codebase for testability: the real driver types satisfy small interfaces
// (collection/singleResult/cursor) so unit tests can substitute fakes
// without a live database.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dataplane-ai/analyst-agent/internal/artifact"
)

const (
	collArtifacts        = "artifacts"
	collPermissions      = "asset_permissions"
	collMetricDatasets   = "metric_files_to_datasets"
	collMetricDashboards = "metric_files_to_dashboard_files"
	collCollectionAssets = "collections_to_assets"

	defaultTimeout = 10 * time.Second
)

// Options configures the store.
type Options struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

// Store implements artifact.Store against MongoDB.
type Store struct {
	client  *mongodriver.Client
	db      *mongodriver.Database
	timeout time.Duration
}

// New builds a Store and ensures the indexes its query patterns depend on.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Store{
		client:  opts.Client,
		db:      opts.Client.Database(opts.Database),
		timeout: timeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.Collection(collArtifacts).Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "type", Value: 1}, {Key: "deleted_at", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := s.db.Collection(collPermissions).Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "identity_type", Value: 1}, {Key: "asset_id", Value: 1}, {Key: "asset_type", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.db.Collection(collMetricDatasets).Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "metric_id", Value: 1}, {Key: "dataset_id", Value: 1}, {Key: "version_number", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.db.Collection(collMetricDashboards).Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "metric_id", Value: 1}, {Key: "dashboard_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// InsertMetric persists a new metric artifact, its owner permission, and its
// version-1 dataset edges in a single transaction.
func (s *Store) InsertMetric(ctx context.Context, a *artifact.Artifact, datasetIDs []uuid.UUID, ownerID uuid.UUID) error {
	return s.insertArtifact(ctx, a, ownerID, func(sc context.Context) error {
		return s.upsertDatasetEdges(sc, a.ID, datasetIDs, a.LatestVersion())
	})
}

// InsertDashboard persists a new dashboard artifact, its owner permission,
// and its metric membership edges in a single transaction.
func (s *Store) InsertDashboard(ctx context.Context, a *artifact.Artifact, metricIDs []uuid.UUID, ownerID uuid.UUID) error {
	return s.insertArtifact(ctx, a, ownerID, func(sc context.Context) error {
		return s.upsertDashboardEdges(sc, metricIDs, a.ID)
	})
}

func (s *Store) insertArtifact(ctx context.Context, a *artifact.Artifact, ownerID uuid.UUID, edges func(context.Context) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		if _, err := s.db.Collection(collArtifacts).InsertOne(sc, a); err != nil {
			return nil, fmt.Errorf("insert artifact: %w", err)
		}
		perm := artifact.AssetPermission{
			IdentityID:   ownerID,
			IdentityType: artifact.IdentityUser,
			AssetID:      a.ID,
			AssetType:    a.Type,
			Role:         artifact.RoleOwner,
			CreatedAt:    time.Now().UTC(),
			CreatedBy:    ownerID,
		}
		if _, err := s.db.Collection(collPermissions).InsertOne(sc, perm); err != nil {
			return nil, fmt.Errorf("insert owner permission: %w", err)
		}
		if edges != nil {
			if err := edges(sc); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// upsertDatasetEdges replaces a metric's dataset edges for versionNumber.
// Conflicts on the (metric_id, dataset_id, version_number) natural key are
// ignored so a partial retry of the same version is idempotent.
func (s *Store) upsertDatasetEdges(ctx context.Context, metricID uuid.UUID, datasetIDs []uuid.UUID, versionNumber int) error {
	for _, dsID := range datasetIDs {
		filter := bson.M{"metric_id": metricID, "dataset_id": dsID, "version_number": versionNumber}
		update := bson.M{"$setOnInsert": artifact.MetricToDataset{MetricID: metricID, DatasetID: dsID, VersionNumber: versionNumber}}
		if _, err := s.db.Collection(collMetricDatasets).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
			return fmt.Errorf("upsert metric->dataset edge: %w", err)
		}
	}
	return nil
}

// upsertDashboardEdges adds membership edges for metricIDs and soft-deletes
// any prior edges for dashboardID not present in metricIDs.
func (s *Store) upsertDashboardEdges(ctx context.Context, metricIDs []uuid.UUID, dashboardID uuid.UUID) error {
	keep := make(map[uuid.UUID]struct{}, len(metricIDs))
	for _, mID := range metricIDs {
		keep[mID] = struct{}{}
		filter := bson.M{"metric_id": mID, "dashboard_id": dashboardID}
		update := bson.M{
			"$setOnInsert": artifact.MetricToDashboard{MetricID: mID, DashboardID: dashboardID},
			"$set":         bson.M{"deleted_at": nil},
		}
		if _, err := s.db.Collection(collMetricDashboards).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
			return fmt.Errorf("upsert metric->dashboard edge: %w", err)
		}
	}

	cur, err := s.db.Collection(collMetricDashboards).Find(ctx, bson.M{"dashboard_id": dashboardID, "deleted_at": nil})
	if err != nil {
		return fmt.Errorf("list dashboard edges: %w", err)
	}
	defer cur.Close(ctx)
	var stale []uuid.UUID
	for cur.Next(ctx) {
		var row artifact.MetricToDashboard
		if err := cur.Decode(&row); err != nil {
			return err
		}
		if _, ok := keep[row.MetricID]; !ok {
			stale = append(stale, row.MetricID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	now := time.Now().UTC()
	_, err = s.db.Collection(collMetricDashboards).UpdateMany(ctx,
		bson.M{"dashboard_id": dashboardID, "metric_id": bson.M{"$in": stale}},
		bson.M{"$set": bson.M{"deleted_at": now}})
	return err
}

// GetWithPermission fetches the artifact and resolves the caller's effective
// role per §4.4: direct grant, collection overlay, dashboard membership
// (metrics only), then a public-link fallback.
func (s *Store) GetWithPermission(ctx context.Context, id uuid.UUID, userID uuid.UUID, publicPassword string) (*artifact.Artifact, artifact.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var a artifact.Artifact
	if err := s.db.Collection(collArtifacts).FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, artifact.RoleNone, nil
		}
		return nil, artifact.RoleNone, err
	}
	if a.IsDeleted() {
		return nil, artifact.RoleNone, nil
	}

	direct, err := s.directRole(ctx, userID, id, a.Type)
	if err != nil {
		return nil, artifact.RoleNone, err
	}
	overlay, err := s.collectionOverlayRole(ctx, userID, id, a.Type)
	if err != nil {
		return nil, artifact.RoleNone, err
	}
	dashboardMember := false
	if a.Type == artifact.TypeMetric {
		dashboardMember, err = s.isDashboardMemberAccessible(ctx, userID, id)
		if err != nil {
			return nil, artifact.RoleNone, err
		}
	}

	access := artifact.Resolve(artifact.ResolveInput{
		Direct:                 direct,
		CollectionOverlay:      overlay,
		DashboardMember:        dashboardMember,
		PubliclyAccessible:     a.PubliclyAccessible,
		PublicExpiry:           a.PublicExpiry,
		PublicPassword:         a.PublicPassword,
		ProvidedPublicPassword: publicPassword,
	})
	return &a, access.Role, nil
}

func (s *Store) directRole(ctx context.Context, userID, assetID uuid.UUID, assetType artifact.Type) (artifact.Role, error) {
	var perm artifact.AssetPermission
	err := s.db.Collection(collPermissions).FindOne(ctx, bson.M{
		"identity_id": userID, "identity_type": artifact.IdentityUser,
		"asset_id": assetID, "asset_type": assetType,
	}).Decode(&perm)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return artifact.RoleNone, nil
	}
	if err != nil {
		return artifact.RoleNone, err
	}
	return perm.Role, nil
}

func (s *Store) collectionOverlayRole(ctx context.Context, userID, assetID uuid.UUID, assetType artifact.Type) (artifact.Role, error) {
	cur, err := s.db.Collection(collCollectionAssets).Find(ctx, bson.M{"asset_id": assetID, "asset_type": assetType, "deleted_at": nil})
	if err != nil {
		return artifact.RoleNone, err
	}
	defer cur.Close(ctx)

	best := artifact.RoleNone
	for cur.Next(ctx) {
		var row artifact.CollectionAsset
		if err := cur.Decode(&row); err != nil {
			return artifact.RoleNone, err
		}
		role, err := s.directRole(ctx, userID, row.CollectionID, artifact.Type("collection"))
		if err != nil {
			return artifact.RoleNone, err
		}
		best = artifact.Max(best, role)
	}
	return best, nil
}

func (s *Store) isDashboardMemberAccessible(ctx context.Context, userID, metricID uuid.UUID) (bool, error) {
	cur, err := s.db.Collection(collMetricDashboards).Find(ctx, bson.M{"metric_id": metricID, "deleted_at": nil})
	if err != nil {
		return false, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row artifact.MetricToDashboard
		if err := cur.Decode(&row); err != nil {
			return false, err
		}
		role, err := s.directRole(ctx, userID, row.DashboardID, artifact.TypeDashboard)
		if err != nil {
			return false, err
		}
		if role != artifact.RoleNone {
			return true, nil
		}
		overlay, err := s.collectionOverlayRole(ctx, userID, row.DashboardID, artifact.TypeDashboard)
		if err != nil {
			return false, err
		}
		if overlay != artifact.RoleNone {
			return true, nil
		}
	}
	return false, nil
}

// UpdateContent appends a new metric version, updates content/updated_at,
// and replaces the metric's dataset edges for the new version.
func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, newContent any, newDatasetIDs []uuid.UUID) (int, error) {
	return s.updateContent(ctx, id, newContent, func(sc context.Context, versionNumber int) error {
		return s.upsertDatasetEdges(sc, id, newDatasetIDs, versionNumber)
	})
}

// UpdateDashboardContent appends a new dashboard version and recomputes its
// metric membership edges.
func (s *Store) UpdateDashboardContent(ctx context.Context, id uuid.UUID, newContent any, newMetricIDs []uuid.UUID) (int, error) {
	return s.updateContent(ctx, id, newContent, func(sc context.Context, _ int) error {
		return s.upsertDashboardEdges(sc, newMetricIDs, id)
	})
}

func (s *Store) updateContent(ctx context.Context, id uuid.UUID, newContent any, edges func(context.Context, int) error) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		var a artifact.Artifact
		if err := s.db.Collection(collArtifacts).FindOne(sc, bson.M{"_id": id}).Decode(&a); err != nil {
			return nil, err
		}
		versionNumber := a.LatestVersion() + 1
		snapshot := artifact.VersionSnapshot{VersionNumber: versionNumber, UpdatedAt: time.Now().UTC(), Content: newContent}

		update := bson.M{
			"$set":  bson.M{"content": newContent, "updated_at": snapshot.UpdatedAt},
			"$push": bson.M{"version_history": snapshot},
		}
		if _, err := s.db.Collection(collArtifacts).UpdateOne(sc, bson.M{"_id": id}, update); err != nil {
			return nil, fmt.Errorf("append version: %w", err)
		}
		if edges != nil {
			if err := edges(sc, versionNumber); err != nil {
				return nil, err
			}
		}
		return versionNumber, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// SoftDelete marks the artifact as deleted without removing the row.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	now := time.Now().UTC()
	_, err := s.db.Collection(collArtifacts).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"deleted_at": now}})
	return err
}

// ListByOrganization returns every non-deleted artifact of type t in org.
func (s *Store) ListByOrganization(ctx context.Context, orgID uuid.UUID, t artifact.Type) ([]*artifact.Artifact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.db.Collection(collArtifacts).Find(ctx, bson.M{"organization_id": orgID, "type": t, "deleted_at": nil})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*artifact.Artifact
	for cur.Next(ctx) {
		var a artifact.Artifact
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

// ValidateMetricIDs returns the subset of ids missing a live metric row.
func (s *Store) ValidateMetricIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return s.validateIDs(ctx, ids, artifact.TypeMetric)
}

// ValidateDatasetIDs returns the subset of ids that are unknown. Datasets
// are owned by the out-of-scope warehouse catalog, so this store performs no
// lookup and reports every id as present (it always returns nil, nil).
func (s *Store) ValidateDatasetIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *Store) validateIDs(ctx context.Context, ids []uuid.UUID, t artifact.Type) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.db.Collection(collArtifacts).Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "type": t, "deleted_at": nil})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	found := make(map[uuid.UUID]struct{}, len(ids))
	for cur.Next(ctx) {
		var a artifact.Artifact
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		found[a.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, cur.Err()
}
