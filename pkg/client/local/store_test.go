package local

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	reg, err := schema.NewRegistry([]schema.Collection{
		{Name: "user", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "name", Kind: schema.KindScalar},
		}},
		{Name: "post", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "title", Kind: schema.KindScalar},
			{Name: "user", Kind: schema.KindPointer, Target: "user"},
		}},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	s, err := Open(t.TempDir(), reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stamped(id string, at time.Time, extra map[string]any) model.Document {
	doc := model.Document{"_id": id}
	for k, v := range extra {
		doc[k] = v
	}
	ts := at.UTC().Format(model.TimeLayout)
	doc["_created_at"] = ts
	doc["_updated_at"] = ts
	return doc
}

func TestPutGetDelete(t *testing.T) {
	s := testStore(t)
	doc := stamped("u1", time.Now(), map[string]any{"name": "alice"})
	if err := s.Put("user", doc); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get("user", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["name"] != "alice" {
		t.Fatalf("unexpected doc %v", got)
	}
	if err := s.Delete("user", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("user", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// deleting an absent doc is a no-op
	if err := s.Delete("user", "u1"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestUnknownCollection(t *testing.T) {
	s := testStore(t)
	if err := s.Put("nope", model.Document{"_id": "x"}); !errors.Is(err, schema.ErrUnknownCollection) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
	if _, err := s.List("nope", 0); !errors.Is(err, schema.ErrUnknownCollection) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := testStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		doc := stamped(fmt.Sprintf("u%d", i), base.Add(time.Duration(i)*time.Minute), nil)
		if err := s.Put("user", doc); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	out, err := s.List("user", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 docs, got %d", len(out))
	}
	for i, doc := range out {
		want := fmt.Sprintf("u%d", 4-i)
		if doc.ID() != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, doc.ID())
		}
	}
	limited, err := s.List("user", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID() != "u4" {
		t.Fatalf("unexpected limited result %v", limited)
	}
}

func TestListSkipsTombstones(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	if err := s.Put("user", stamped("u1", now, nil)); err != nil {
		t.Fatalf("put: %v", err)
	}
	dead := stamped("u2", now.Add(time.Minute), nil)
	dead["_expires_at"] = now.Add(2 * time.Minute).UTC().Format(model.TimeLayout)
	if err := s.Put("user", dead); err != nil {
		t.Fatalf("put tombstone: %v", err)
	}
	out, err := s.List("user", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID() != "u1" {
		t.Fatalf("tombstone leaked into list: %v", out)
	}
}

func TestLookupIndex(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	if err := s.Put("post", stamped("p1", now, map[string]any{"user": "user$u1", "title": "a"})); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("post", stamped("p2", now.Add(time.Second), map[string]any{"user": "user$u1", "title": "b"})); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("post", stamped("p3", now.Add(2*time.Second), map[string]any{"user": "user$u2", "title": "c"})); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err := s.LookupIndex("post", "user", "user$u1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(out))
	}

	// re-pointing p2 must drop the stale index entry
	moved := stamped("p2", now.Add(time.Second), map[string]any{"user": "user$u2", "title": "b"})
	if err := s.Put("post", moved); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err = s.LookupIndex("post", "user", "user$u1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(out) != 1 || out[0].ID() != "p1" {
		t.Fatalf("stale index entry survived: %v", out)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := testStore(t)
	if _, ok, err := s.Cursor("user", model.ActivityRecent); err != nil || ok {
		t.Fatalf("expected no cursor, got ok=%v err=%v", ok, err)
	}
	cur := Cursor{Synced: time.Now().UTC().Format(model.TimeLayout), Drained: true}
	if err := s.SetCursor("user", model.ActivityRecent, cur); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	got, ok, err := s.Cursor("user", model.ActivityRecent)
	if err != nil || !ok {
		t.Fatalf("cursor: ok=%v err=%v", ok, err)
	}
	if got != cur {
		t.Fatalf("expected %+v, got %+v", cur, got)
	}
	// activities track independent cursors
	if _, ok, _ := s.Cursor("user", model.ActivityOldest); ok {
		t.Fatalf("oldest cursor should be unset")
	}
}

func TestApplySyncBatch(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	if err := s.Put("user", stamped("u1", now, map[string]any{"name": "old"})); err != nil {
		t.Fatalf("put: %v", err)
	}
	dead := stamped("u1", now, nil)
	dead["_expires_at"] = now.Add(time.Minute).UTC().Format(model.TimeLayout)

	entries := []model.SyncEntry{
		{Status: model.StatusDeleted, Value: dead},
		{Status: model.StatusCreated, Value: stamped("u2", now.Add(time.Second), map[string]any{"name": "new"})},
	}
	cur := Cursor{Synced: now.Add(time.Second).UTC().Format(model.TimeLayout)}
	if err := s.ApplySyncBatch("user", model.ActivityRecent, entries, cur); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := s.Get("user", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted entry still present: %v", err)
	}
	if doc, err := s.Get("user", "u2"); err != nil || doc["name"] != "new" {
		t.Fatalf("created entry missing: %v %v", doc, err)
	}
	got, ok, err := s.Cursor("user", model.ActivityRecent)
	if err != nil || !ok || got.Synced != cur.Synced {
		t.Fatalf("cursor not advanced with batch: %+v ok=%v err=%v", got, ok, err)
	}
}

func TestApplySyncBatchAtomic(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	before := Cursor{Synced: now.UTC().Format(model.TimeLayout)}
	if err := s.SetCursor("user", model.ActivityRecent, before); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	// a deleted entry without _id fails the whole apply
	entries := []model.SyncEntry{
		{Status: model.StatusCreated, Value: stamped("u9", now, nil)},
		{Status: model.StatusDeleted, Value: model.Document{}},
	}
	after := Cursor{Synced: now.Add(time.Minute).UTC().Format(model.TimeLayout)}
	if err := s.ApplySyncBatch("user", model.ActivityRecent, entries, after); err == nil {
		t.Fatalf("expected apply failure")
	}
	got, _, err := s.Cursor("user", model.ActivityRecent)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if got.Synced != before.Synced {
		t.Fatalf("cursor advanced despite failed apply")
	}
	if _, err := s.Get("user", "u9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("partial batch leaked: %v", err)
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	now := time.Now()
	if err := s.Put("user", stamped("u1", now, nil)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.SetCursor("user", model.ActivityRecent, Cursor{Synced: "x"}); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	if err := s.Clear("user"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if out, err := s.List("user", 0); err != nil || len(out) != 0 {
		t.Fatalf("clear left documents: %v %v", out, err)
	}
	if _, ok, _ := s.Cursor("user", model.ActivityRecent); ok {
		t.Fatalf("clear left cursor")
	}
}
