package query

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry([]schema.Collection{
		{Name: "user", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "name", Kind: schema.KindScalar},
		}},
		{Name: "session", Reserved: true, Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "user", Kind: schema.KindPointer, Target: "user"},
		}},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestNormalizeFieldAliases(t *testing.T) {
	cases := map[string]string{
		"createdAt":      "_created_at",
		"updatedAt":      "_updated_at",
		"expiresAt":      "_expires_at",
		"objectId":       "_id",
		"_created_at":    "_created_at",
		"name":           "name",
		"createdAt.nano": "_created_at.nano",
	}
	for in, want := range cases {
		if got := NormalizeField(in); got != want {
			t.Fatalf("NormalizeField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMapRecursive(t *testing.T) {
	got := NormalizeMap(map[string]any{
		"createdAt": map[string]any{"$gte": "2026-01-01T00:00:00Z"},
		"$or": []any{
			map[string]any{"updatedAt": map[string]any{"$lt": "2026-02-01T00:00:00Z"}},
			map[string]any{"name": "ada"},
		},
	})
	inner, ok := got["_created_at"].(bson.M)
	if !ok || inner["$gte"] != "2026-01-01T00:00:00Z" {
		t.Fatalf("createdAt not normalized: %#v", got)
	}
	or, ok := got["$or"].([]any)
	if !ok || len(or) != 2 {
		t.Fatalf("$or not preserved: %#v", got)
	}
	first := or[0].(bson.M)
	if _, ok := first["_updated_at"]; !ok {
		t.Fatalf("alias inside $or not normalized: %#v", first)
	}
}

func TestLiveFilterExcludesTombstones(t *testing.T) {
	m := liveFilter(map[string]any{"name": "ada"})
	exists, ok := m["_expires_at"].(bson.M)
	if !ok || exists["$exists"] != false {
		t.Fatalf("tombstone exclusion missing: %#v", m)
	}

	// explicit _expires_at conditions are left alone
	m = liveFilter(map[string]any{"expiresAt": map[string]any{"$exists": true}})
	exists, ok = m["_expires_at"].(bson.M)
	if !ok || exists["$exists"] != true {
		t.Fatalf("explicit tombstone filter overridden: %#v", m)
	}
}

func TestBuildPipelineOrder(t *testing.T) {
	p := BuildPipeline(Description{
		Filter:     map[string]any{"name": "ada"},
		Pipeline:   []map[string]any{{"$group": map[string]any{"_id": "$name"}}},
		Sort:       map[string]any{"createdAt": -1},
		Projection: map[string]any{"name": 1},
		Limit:      10,
		Skip:       5,
	})
	want := []string{"$match", "$group", "$sort", "$project", "$limit", "$skip"}
	if len(p) != len(want) {
		t.Fatalf("pipeline has %d stages, want %d: %#v", len(p), len(want), p)
	}
	for i, stage := range p {
		if stage[0].Key != want[i] {
			t.Fatalf("stage %d is %s, want %s", i, stage[0].Key, want[i])
		}
	}
	sort := p[2][0].Value.(bson.D)
	if sort[0].Key != "_created_at" || sort[0].Value != -1 {
		t.Fatalf("sort not normalized: %#v", sort)
	}
}

func TestReservedCollectionGate(t *testing.T) {
	r := New(nil, testRegistry(t))

	_, err := r.Find(context.Background(), "session", Description{})
	if !errors.Is(err, ErrReserved) {
		t.Fatalf("expected ErrReserved, got %v", err)
	}

	unlocked := auth.WithIdentity(context.Background(), auth.Identity{Role: auth.RoleBackend})
	if err := r.guard(unlocked, "session"); err != nil {
		t.Fatalf("backend caller rejected: %v", err)
	}

	frontend := auth.WithIdentity(context.Background(), auth.Identity{Role: auth.RoleFrontend})
	if err := r.guard(frontend, "session"); !errors.Is(err, ErrReserved) {
		t.Fatalf("frontend caller allowed on reserved collection: %v", err)
	}
}

func TestUnknownCollection(t *testing.T) {
	r := New(nil, testRegistry(t))
	if _, err := r.Find(context.Background(), "ghost", Description{}); !errors.Is(err, schema.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}
