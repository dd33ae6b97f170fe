// Package mongosource implements catalog.DatasetSource against a MongoDB
// "datasets" collection, following the same thin collection-wrapper pattern
// used by internal/artifact/mongostore and internal/runlog/mongo.
package mongosource

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dataplane-ai/analyst-agent/internal/catalog"
)

const (
	defaultCollection = "datasets"
	defaultTimeout    = 10 * time.Second
)

// Options configures the Source.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Source implements catalog.DatasetSource against MongoDB.
type Source struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type datasetDocument struct {
	ID             bson.ObjectID `bson:"_id"`
	OrganizationID string        `bson:"organization_id"`
	Name           string        `bson:"name"`
	YMLContent     string        `bson:"yml_content"`
	DeletedAt      *time.Time    `bson:"deleted_at,omitempty"`
}

// New builds a Source against the given database.
func New(opts Options) (*Source, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	coll := opts.Collection
	if coll == "" {
		coll = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Source{
		coll:    opts.Client.Database(opts.Database).Collection(coll),
		timeout: timeout,
	}, nil
}

// ListDatasets implements catalog.DatasetSource: every non-deleted dataset
// belonging to organizationID.
func (s *Source) ListDatasets(ctx context.Context, organizationID uuid.UUID) ([]catalog.Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"organization_id": organizationID.String(),
		"deleted_at":      bson.M{"$exists": false},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []catalog.Dataset
	for cur.Next(ctx) {
		var doc datasetDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, catalog.Dataset{
			ID:         datasetUUID(doc.ID),
			Name:       doc.Name,
			YMLContent: doc.YMLContent,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// datasetUUID derives a stable UUID from a Mongo ObjectID's 12 bytes,
// zero-padded on the left to 16, so callers outside this package never deal
// in ObjectIDs directly.
func datasetUUID(id bson.ObjectID) uuid.UUID {
	var b [16]byte
	copy(b[4:], id[:])
	return uuid.UUID(b)
}
