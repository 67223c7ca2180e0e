// Package query translates wire query descriptions into mongo operations.
// It owns alias normalization, the default tombstone exclusion, and the
// reserved-collection gate.
package query

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/store"
)

// ErrReserved is returned when a caller without the unlocked capability
// queries a reserved collection.
var ErrReserved = errors.New("reserved collection")

// Description is the wire shape of a query against one collection.
type Description struct {
	Filter     map[string]any   `json:"filter,omitempty"`
	Sort       map[string]any   `json:"sort,omitempty"`
	Projection map[string]any   `json:"projection,omitempty"`
	Pipeline   []map[string]any `json:"pipeline,omitempty"`
	Limit      int64            `json:"limit,omitempty"`
	Skip       int64            `json:"skip,omitempty"`
}

// Runner executes descriptions against the authoritative store.
type Runner struct {
	store *store.Store
	reg   *schema.Registry
}

// New returns a runner bound to the store and schema registry.
func New(st *store.Store, reg *schema.Registry) *Runner {
	return &Runner{store: st, reg: reg}
}

// guard rejects unknown collections and reserved collections for callers
// that do not hold the unlocked capability.
func (r *Runner) guard(ctx context.Context, collection string) error {
	col, err := r.reg.Get(collection)
	if err != nil {
		return err
	}
	if col.Reserved && !auth.Unlocked(ctx) {
		return fmt.Errorf("%w: %s", ErrReserved, collection)
	}
	return nil
}

// Find returns every matching document, tombstones excluded unless the
// filter addresses _expires_at itself.
func (r *Runner) Find(ctx context.Context, collection string, d Description) ([]model.Document, error) {
	if err := r.guard(ctx, collection); err != nil {
		return nil, err
	}
	opts := options.Find()
	if len(d.Sort) > 0 {
		opts.SetSort(sortSpec(d.Sort))
	}
	if len(d.Projection) > 0 {
		opts.SetProjection(NormalizeMap(d.Projection))
	}
	if d.Limit > 0 {
		opts.SetLimit(d.Limit)
	}
	if d.Skip > 0 {
		opts.SetSkip(d.Skip)
	}
	cur, err := r.store.Collection(collection).Find(ctx, liveFilter(d.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	var docs []model.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s results: %w", collection, err)
	}
	return docs, nil
}

// FindOne returns the first matching document or store.ErrNotFound.
func (r *Runner) FindOne(ctx context.Context, collection string, d Description) (model.Document, error) {
	if err := r.guard(ctx, collection); err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if len(d.Sort) > 0 {
		opts.SetSort(sortSpec(d.Sort))
	}
	if len(d.Projection) > 0 {
		opts.SetProjection(NormalizeMap(d.Projection))
	}
	var doc model.Document
	err := r.store.Collection(collection).FindOne(ctx, liveFilter(d.Filter), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return doc, nil
}

// Count returns the number of matching live documents.
func (r *Runner) Count(ctx context.Context, collection string, d Description) (int64, error) {
	if err := r.guard(ctx, collection); err != nil {
		return 0, err
	}
	n, err := r.store.Collection(collection).CountDocuments(ctx, liveFilter(d.Filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// Aggregate runs the description as a pipeline. Stage order is fixed:
// $match, caller stages, $sort, $project, $limit, $skip.
func (r *Runner) Aggregate(ctx context.Context, collection string, d Description) ([]model.Document, error) {
	if err := r.guard(ctx, collection); err != nil {
		return nil, err
	}
	cur, err := r.store.Collection(collection).Aggregate(ctx, BuildPipeline(d))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", collection, err)
	}
	var docs []model.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s results: %w", collection, err)
	}
	return docs, nil
}

// BuildPipeline assembles the aggregation stages in canonical order.
func BuildPipeline(d Description) mongo.Pipeline {
	var p mongo.Pipeline
	p = append(p, bson.D{{Key: "$match", Value: liveFilter(d.Filter)}})
	for _, stage := range d.Pipeline {
		for op, value := range stage {
			p = append(p, bson.D{{Key: op, Value: normalizeValue(value)}})
		}
	}
	if len(d.Sort) > 0 {
		p = append(p, bson.D{{Key: "$sort", Value: sortSpec(d.Sort)}})
	}
	if len(d.Projection) > 0 {
		p = append(p, bson.D{{Key: "$project", Value: NormalizeMap(d.Projection)}})
	}
	if d.Limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: d.Limit}})
	}
	if d.Skip > 0 {
		p = append(p, bson.D{{Key: "$skip", Value: d.Skip}})
	}
	return p
}

// liveFilter normalizes the caller filter and, unless the caller addressed
// _expires_at directly, excludes tombstones.
func liveFilter(filter map[string]any) bson.M {
	m := NormalizeMap(filter)
	if _, ok := m[model.FieldExpiresAt]; !ok {
		m[model.FieldExpiresAt] = bson.M{"$exists": false}
	}
	return m
}

func sortSpec(sort map[string]any) bson.D {
	var d bson.D
	for field, dir := range sort {
		d = append(d, bson.E{Key: NormalizeField(field), Value: sortDir(dir)})
	}
	return d
}

func sortDir(v any) int {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return -1
		}
	case int64:
		if n < 0 {
			return -1
		}
	case float64:
		if n < 0 {
			return -1
		}
	}
	return 1
}
