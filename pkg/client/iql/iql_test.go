package iql

import (
	"errors"
	"testing"
	"time"

	"github.com/stewones/borda-sub001/pkg/client/local"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

func openStore(t *testing.T, cols []schema.Collection) *local.Store {
	t.Helper()
	reg, err := schema.NewRegistry(cols)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	s, err := local.Open(t.TempDir(), reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s *local.Store, collection, id string, at time.Time, extra map[string]any) {
	t.Helper()
	doc := model.Document{"_id": id}
	for k, v := range extra {
		doc[k] = v
	}
	ts := at.UTC().Format(model.TimeLayout)
	doc["_created_at"] = ts
	doc["_updated_at"] = ts
	if err := s.Put(collection, doc); err != nil {
		t.Fatalf("put %s/%s: %v", collection, id, err)
	}
}

func pointerSchema() []schema.Collection {
	return []schema.Collection{
		{Name: "user", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "name", Kind: schema.KindScalar},
		}},
		{Name: "post", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "title", Kind: schema.KindScalar},
			{Name: "author", Kind: schema.KindPointer, Target: "user"},
		}},
	}
}

// seedGraph loads the four-user, two-post fixture: users in descending
// creation order u1..u4, post A authored by u3, post B authored by u4.
func seedGraph(t *testing.T, s *local.Store) {
	base := time.Now().Add(-time.Hour)
	put(t, s, "user", "u1", base.Add(4*time.Minute), map[string]any{"name": "one"})
	put(t, s, "user", "u2", base.Add(3*time.Minute), map[string]any{"name": "two"})
	put(t, s, "user", "u3", base.Add(2*time.Minute), map[string]any{"name": "three"})
	put(t, s, "user", "u4", base.Add(1*time.Minute), map[string]any{"name": "four"})
	put(t, s, "post", "pa", base, map[string]any{"title": "A", "author": "user$u3"})
	put(t, s, "post", "pb", base, map[string]any{"title": "B", "author": "user$u4"})
}

func postsOf(t *testing.T, doc model.Document) []model.Document {
	t.Helper()
	posts, ok := doc["posts"].([]model.Document)
	if !ok {
		t.Fatalf("user %s has no posts array: %v", doc.ID(), doc["posts"])
	}
	return posts
}

func TestGraphResolutionByDirective(t *testing.T) {
	s := openStore(t, pointerSchema())
	seedGraph(t, s)
	e := New(s)

	out, err := e.Execute(Node{"users": map[string]any{
		"posts": map[string]any{"$by": "author"},
	}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	users := out["users"]
	if len(users) != 4 {
		t.Fatalf("expected 4 users, got %d", len(users))
	}
	for i, want := range []string{"u1", "u2", "u3", "u4"} {
		if users[i].ID() != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, users[i].ID())
		}
	}
	if posts := postsOf(t, users[0]); len(posts) != 0 {
		t.Fatalf("u1 should have no posts, got %v", posts)
	}
	if posts := postsOf(t, users[2]); len(posts) != 1 || posts[0].ID() != "pa" {
		t.Fatalf("u3 should have post pa, got %v", posts)
	}
	if posts := postsOf(t, users[3]); len(posts) != 1 || posts[0].ID() != "pb" {
		t.Fatalf("u4 should have post pb, got %v", posts)
	}
}

func TestGraphResolutionPointerScan(t *testing.T) {
	s := openStore(t, pointerSchema())
	seedGraph(t, s)
	e := New(s)

	// without $by the single author pointer is found by the schema scan
	out, err := e.Execute(Node{"users": map[string]any{"posts": map[string]any{}}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	users := out["users"]
	if posts := postsOf(t, users[2]); len(posts) != 1 || posts[0].ID() != "pa" {
		t.Fatalf("u3 should have post pa, got %v", posts)
	}
}

func TestGraphResolutionImplicitBackRef(t *testing.T) {
	cols := []schema.Collection{
		{Name: "user", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
		}},
		{Name: "post", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "title", Kind: schema.KindScalar},
			{Name: "user", Kind: schema.KindScalar},
		}},
	}
	s := openStore(t, cols)
	base := time.Now().Add(-time.Hour)
	put(t, s, "user", "u3", base.Add(2*time.Minute), nil)
	put(t, s, "user", "u4", base.Add(1*time.Minute), nil)
	put(t, s, "post", "pa", base, map[string]any{"title": "A", "user": "user$u3"})
	put(t, s, "post", "pb", base, map[string]any{"title": "B", "user": "user$u4"})

	e := New(s)
	out, err := e.Execute(Node{"users": map[string]any{"posts": map[string]any{}}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	users := out["users"]
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if posts := postsOf(t, users[0]); len(posts) != 1 || posts[0].ID() != "pa" {
		t.Fatalf("u3 should have post pa, got %v", posts)
	}
}

func TestAmbiguousPointer(t *testing.T) {
	cols := []schema.Collection{
		{Name: "user", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
		}},
		{Name: "post", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "author", Kind: schema.KindPointer, Target: "user"},
			{Name: "editor", Kind: schema.KindPointer, Target: "user"},
		}},
	}
	s := openStore(t, cols)
	put(t, s, "user", "u1", time.Now(), nil)
	e := New(s)

	_, err := e.Execute(Node{"users": map[string]any{"posts": map[string]any{}}})
	if !errors.Is(err, ErrAmbiguousPointer) {
		t.Fatalf("expected ambiguous pointer error, got %v", err)
	}

	// $by disambiguates
	if _, err := e.Execute(Node{"users": map[string]any{
		"posts": map[string]any{"$by": "author"},
	}}); err != nil {
		t.Fatalf("execute with $by: %v", err)
	}
}

func TestUnknownRootFailsFast(t *testing.T) {
	s := openStore(t, pointerSchema())
	e := New(s)
	if _, err := e.Execute(Node{"widgets": map[string]any{}}); !errors.Is(err, schema.ErrUnknownCollection) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
}

func TestDirectives(t *testing.T) {
	s := openStore(t, pointerSchema())
	base := time.Now().Add(-time.Hour)
	put(t, s, "user", "u1", base.Add(3*time.Minute), map[string]any{"name": "carol", "age": 30.0})
	put(t, s, "user", "u2", base.Add(2*time.Minute), map[string]any{"name": "bob", "age": 25.0})
	put(t, s, "user", "u3", base.Add(1*time.Minute), map[string]any{"name": "alice", "age": 35.0})
	e := New(s)

	out, err := e.Execute(Node{"users": map[string]any{
		"$filter": map[string]any{"age": map[string]any{"$gte": 30.0}},
		"$sort":   map[string]any{"name": 1},
	}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	users := out["users"]
	if len(users) != 2 || users[0]["name"] != "alice" || users[1]["name"] != "carol" {
		t.Fatalf("unexpected filtered/sorted result %v", users)
	}

	out, err = e.Execute(Node{"users": map[string]any{"$skip": 1.0, "$limit": 1.0}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	users = out["users"]
	if len(users) != 1 || users[0].ID() != "u2" {
		t.Fatalf("unexpected paged result %v", users)
	}
}

