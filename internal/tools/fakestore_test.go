package tools

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dataplane-ai/analyst-agent/internal/artifact"
)

// fakeStore is an in-memory artifact.Store for exercising the tool
// executors without a real database.
type fakeStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*artifact.Artifact
	roles     map[uuid.UUID]artifact.Role
	knownIDs  map[uuid.UUID]struct{}

	insertErr error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		artifacts: make(map[uuid.UUID]*artifact.Artifact),
		roles:     make(map[uuid.UUID]artifact.Role),
		knownIDs:  make(map[uuid.UUID]struct{}),
	}
}

func (s *fakeStore) InsertMetric(_ context.Context, a *artifact.Artifact, _ []uuid.UUID, _ uuid.UUID) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.ID] = a
	return nil
}

func (s *fakeStore) InsertDashboard(_ context.Context, a *artifact.Artifact, _ []uuid.UUID, _ uuid.UUID) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.ID] = a
	return nil
}

func (s *fakeStore) GetWithPermission(_ context.Context, id uuid.UUID, userID uuid.UUID, _ string) (*artifact.Artifact, artifact.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return nil, artifact.RoleNone, nil
	}
	role, ok := s.roles[id]
	if !ok {
		role = artifact.RoleOwner
	}
	return a, role, nil
}

func (s *fakeStore) UpdateContent(_ context.Context, id uuid.UUID, newContent any, _ []uuid.UUID) (int, error) {
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return 0, nil
	}
	a.Content = newContent
	version := a.LatestVersion() + 1
	a.VersionHistory = append(a.VersionHistory, artifact.VersionSnapshot{VersionNumber: version, Content: newContent})
	return version, nil
}

func (s *fakeStore) UpdateDashboardContent(ctx context.Context, id uuid.UUID, newContent any, newMetricIDs []uuid.UUID) (int, error) {
	return s.UpdateContent(ctx, id, newContent, newMetricIDs)
}

func (s *fakeStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, id)
	return nil
}

func (s *fakeStore) ListByOrganization(_ context.Context, orgID uuid.UUID, t artifact.Type) ([]*artifact.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*artifact.Artifact
	for _, a := range s.artifacts {
		if a.OrganizationID == orgID && a.Type == t {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) ValidateMetricIDs(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := s.knownIDs[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *fakeStore) ValidateDatasetIDs(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return s.ValidateMetricIDs(context.Background(), ids)
}

func (s *fakeStore) markKnown(ids ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.knownIDs[id] = struct{}{}
	}
}
