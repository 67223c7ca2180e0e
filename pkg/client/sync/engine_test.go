package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/stewones/borda-sub001/pkg/client/local"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

func testStore(t *testing.T) *local.Store {
	t.Helper()
	reg, err := schema.NewRegistry([]schema.Collection{
		{Name: "user", Fields: []schema.Field{
			{Name: "_id", Kind: schema.KindIdentifier},
			{Name: "name", Kind: schema.KindScalar},
		}},
	})
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

// batchServer serves scripted batches keyed by activity, emptying as they
// are consumed. Empty script -> zero batch.
type batchServer struct {
	mu      gosync.Mutex
	batches map[model.SyncActivity][]model.SyncBatch
	seen    []string
	status  int
}

func (b *batchServer) handler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != 0 {
		w.WriteHeader(b.status)
		return
	}
	activity := model.SyncActivity(r.URL.Query().Get("activity"))
	b.seen = append(b.seen, r.URL.Query().Get("activity")+"|"+r.URL.Query().Get("synced"))
	var batch model.SyncBatch
	if pending := b.batches[activity]; len(pending) > 0 {
		batch = pending[0]
		b.batches[activity] = pending[1:]
	} else {
		batch = model.SyncBatch{Collection: "user", Activity: activity, Count: 0, Data: []model.SyncEntry{}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(batch)
}

func doc(id, name string, at time.Time) model.Document {
	ts := at.UTC().Format(model.TimeLayout)
	return model.Document{"_id": id, "name": name, "_created_at": ts, "_updated_at": ts}
}

func TestSyncAppliesAndDrains(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC()
	srv := &batchServer{batches: map[model.SyncActivity][]model.SyncBatch{
		model.ActivityRecent: {{
			Collection: "user",
			Activity:   model.ActivityRecent,
			Count:      2,
			Synced:     now.Format(model.TimeLayout),
			Data: []model.SyncEntry{
				{Status: model.StatusCreated, Value: doc("u1", "alice", now.Add(-time.Minute))},
				{Status: model.StatusCreated, Value: doc("u2", "bob", now)},
			},
		}},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	if err := engine.Sync(context.Background(), "user"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	out, err := store.List("user", 0)
	if err != nil || len(out) != 2 {
		t.Fatalf("expected 2 docs, got %v err=%v", out, err)
	}
	cur, ok, err := store.Cursor("user", model.ActivityRecent)
	if err != nil || !ok {
		t.Fatalf("cursor: ok=%v err=%v", ok, err)
	}
	if cur.Synced != now.Format(model.TimeLayout) || !cur.Drained {
		t.Fatalf("unexpected cursor %+v", cur)
	}
	oldest, ok, err := store.Cursor("user", model.ActivityOldest)
	if err != nil || !ok || !oldest.Drained {
		t.Fatalf("oldest pass should have drained: %+v ok=%v err=%v", oldest, ok, err)
	}
}

func TestSyncIdempotentWhenUnchanged(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC()
	srv := &batchServer{batches: map[model.SyncActivity][]model.SyncBatch{
		model.ActivityRecent: {{
			Collection: "user",
			Activity:   model.ActivityRecent,
			Count:      1,
			Synced:     now.Format(model.TimeLayout),
			Data:       []model.SyncEntry{{Status: model.StatusCreated, Value: doc("u1", "alice", now)}},
		}},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	if err := engine.Sync(context.Background(), "user"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first, _, _ := store.Cursor("user", model.ActivityRecent)

	if err := engine.Sync(context.Background(), "user"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	second, _, _ := store.Cursor("user", model.ActivityRecent)
	if first != second {
		t.Fatalf("cursor moved on empty delta: %+v -> %+v", first, second)
	}
	if out, _ := store.List("user", 0); len(out) != 1 {
		t.Fatalf("expected 1 doc after resync, got %d", len(out))
	}
}

func TestSyncEmptyCollectionAdvancesWatermark(t *testing.T) {
	store := testStore(t)
	t0 := time.Now().UTC()
	echo := t0.Format(model.TimeLayout)
	empty := func(activity model.SyncActivity) model.SyncBatch {
		return model.SyncBatch{Collection: "user", Activity: activity, Count: 0, Synced: echo, Data: []model.SyncEntry{}}
	}
	srv := &batchServer{batches: map[model.SyncActivity][]model.SyncBatch{
		model.ActivityRecent: {empty(model.ActivityRecent)},
		model.ActivityOldest: {empty(model.ActivityOldest)},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	if err := engine.Sync(context.Background(), "user"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	cur, ok, err := store.Cursor("user", model.ActivityRecent)
	if err != nil || !ok {
		t.Fatalf("cursor: ok=%v err=%v", ok, err)
	}
	if cur.Synced != echo {
		t.Fatalf("empty batch must persist the server clock, got %+v", cur)
	}

	// A document written after the empty first sync has to come through
	// on the next pass, using the echoed clock as the watermark.
	later := t0.Add(time.Minute)
	srv.mu.Lock()
	srv.batches[model.ActivityRecent] = []model.SyncBatch{{
		Collection: "user",
		Activity:   model.ActivityRecent,
		Count:      1,
		Synced:     later.Format(model.TimeLayout),
		Data:       []model.SyncEntry{{Status: model.StatusCreated, Value: doc("u1", "alice", later)}},
	}}
	srv.mu.Unlock()
	if err := engine.Sync(context.Background(), "user"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if out, _ := store.List("user", 0); len(out) != 1 {
		t.Fatalf("expected the late write to sync, got %d docs", len(out))
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var carried bool
	for _, s := range srv.seen {
		if s == "recent|"+echo {
			carried = true
		}
	}
	if !carried {
		t.Fatalf("second pass did not carry the persisted watermark: %v", srv.seen)
	}
}

func TestSyncDeletedRemovesLocally(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC()
	alive := doc("u1", "alice", now.Add(-time.Hour))
	if err := store.Put("user", alive); err != nil {
		t.Fatalf("put: %v", err)
	}
	dead := doc("u1", "alice", now.Add(-time.Hour))
	dead["_updated_at"] = now.Format(model.TimeLayout)
	dead["_expires_at"] = now.Format(model.TimeLayout)
	srv := &batchServer{batches: map[model.SyncActivity][]model.SyncBatch{
		model.ActivityRecent: {{
			Collection: "user",
			Activity:   model.ActivityRecent,
			Count:      1,
			Synced:     now.Format(model.TimeLayout),
			Data:       []model.SyncEntry{{Status: model.StatusDeleted, Value: dead}},
		}},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	if err := engine.Sync(context.Background(), "user"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := store.Get("user", "u1"); !errors.Is(err, local.ErrNotFound) {
		t.Fatalf("deleted doc still in replica: %v", err)
	}
}

func TestSyncFailureLeavesCursor(t *testing.T) {
	store := testStore(t)
	before := local.Cursor{Synced: time.Now().UTC().Format(model.TimeLayout)}
	if err := store.SetCursor("user", model.ActivityRecent, before); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	srv := &batchServer{status: http.StatusInternalServerError}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	if err := engine.Sync(context.Background(), "user"); err == nil {
		t.Fatalf("expected sync failure")
	}
	after, _, err := store.Cursor("user", model.ActivityRecent)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if after.Synced != before.Synced {
		t.Fatalf("cursor advanced on failure")
	}
}

func TestSyncSendsBearerToken(t *testing.T) {
	gotAuth := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		_ = json.NewEncoder(w).Encode(model.SyncBatch{Data: []model.SyncEntry{}})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, func() string { return "tok123" })
	if _, err := client.Fetch(context.Background(), "user", model.ActivityRecent, ""); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if auth := <-gotAuth; auth != "Bearer tok123" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestQueueFullDropsCommand(t *testing.T) {
	q := NewQueue(1)
	if err := q.TryEnqueue(Command{Op: "sync", Collection: "user"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.TryEnqueue(Command{Op: "sync", Collection: "user"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	it := <-q.Out()
	cmd, err := it.Decode()
	it.Done()
	if err != nil || cmd.Collection != "user" {
		t.Fatalf("decode: %v %v", cmd, err)
	}
}

func TestWorkerProcessesTrigger(t *testing.T) {
	store := testStore(t)
	now := time.Now().UTC()
	srv := &batchServer{batches: map[model.SyncActivity][]model.SyncBatch{
		model.ActivityRecent: {{
			Collection: "user",
			Activity:   model.ActivityRecent,
			Count:      1,
			Synced:     now.Format(model.TimeLayout),
			Data:       []model.SyncEntry{{Status: model.StatusCreated, Value: doc("u1", "alice", now)}},
		}},
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	worker := NewWorker(engine, NewQueue(8), nil, time.Hour)
	worker.Start(context.Background())
	defer worker.Stop()

	if err := worker.Trigger("user"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if out, _ := store.List("user", 0); len(out) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never applied the batch")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTriggerSafeAfterStop(t *testing.T) {
	store := testStore(t)
	srv := &batchServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	engine := NewEngine(store, NewClient(ts.URL, nil), 100)
	worker := NewWorker(engine, NewQueue(2), nil, time.Hour)
	worker.Start(context.Background())
	worker.Stop()

	// A late live nudge must never land on a closed channel. At worst the
	// queue fills up and the command is dropped.
	for i := 0; i < 8; i++ {
		if err := worker.Trigger("user"); err != nil && !errors.Is(err, ErrQueueFull) {
			t.Fatalf("trigger after stop: %v", err)
		}
	}
}
