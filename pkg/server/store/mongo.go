// Package store wraps the authoritative MongoDB database: document CRUD,
// index bootstrap, and change stream access for the live and cache layers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
)

// ErrNotFound is returned when a document id does not exist in the
// requested collection.
var ErrNotFound = errors.New("document not found")

// Store is the server-side document store. All documents live in the
// configured database, one mongo collection per schema collection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to the given mongo URI and pings it before returning.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	logger.Info("connecting_mongo", "database", database)
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	logger.Info("mongo_connected", "database", database)
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Collection returns the raw mongo collection handle.
func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes creates the indexes the sync and retention paths rely on:
// an _updated_at index per collection for the batch channel's range scans,
// and a sparse _expires_at index for the tombstone sweep.
func (s *Store) EnsureIndexes(ctx context.Context, collections []string) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: model.FieldUpdatedAt, Value: 1}}},
		{
			Keys:    bson.D{{Key: model.FieldExpiresAt, Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	for _, name := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// Get loads one document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (model.Document, error) {
	var doc model.Document
	err := s.db.Collection(collection).FindOne(ctx, bson.M{model.FieldID: id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Insert stores a new document.
func (s *Store) Insert(ctx context.Context, collection string, doc model.Document) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// Replace swaps the stored document for the given one wholesale. The id
// must already exist.
func (s *Store) Replace(ctx context.Context, collection, id string, doc model.Document) error {
	res, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{model.FieldID: id}, doc)
	if err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

// Delete physically removes a document. Mutation handlers never call this;
// it exists for the retention sweep and reserved-collection maintenance.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{model.FieldID: id})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

// DeleteMany removes every document matching the filter and returns the
// removed count.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := s.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// DeleteExpiredBefore hard-deletes tombstones whose _expires_at is older
// than the cutoff. Timestamps are stored as fixed-width RFC3339 strings,
// so the range condition is a plain string comparison.
func (s *Store) DeleteExpiredBefore(ctx context.Context, collection string, cutoff time.Time) (int64, error) {
	filter := bson.M{model.FieldExpiresAt: bson.M{
		"$exists": true,
		"$lt":     cutoff.UTC().Format(model.TimeLayout),
	}}
	return s.DeleteMany(ctx, collection, filter)
}

// ChangeEvent is the decoded shape of a change stream notification. The
// full document is the post-image (updateLookup), nil for deletes.
type ChangeEvent struct {
	OperationType string         `bson:"operationType"`
	FullDocument  model.Document `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	UpdateDescription struct {
		UpdatedFields   map[string]any `bson:"updatedFields"`
		RemovedFields   []string       `bson:"removedFields"`
		TruncatedArrays []any          `bson:"truncatedArrays"`
	} `bson:"updateDescription"`
}

// Watch opens a change stream on one collection with post-image lookup so
// update events carry the full document.
func (s *Store) Watch(ctx context.Context, collection string) (*mongo.ChangeStream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", collection, err)
	}
	return cs, nil
}
