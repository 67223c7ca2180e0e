package cache

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/telemetry"
)

// Watcher runs one change stream per registered collection and evicts
// cache entries the moment a referenced document changes, independent of
// TTL. It also owns the user-delete cascade into reserved collections.
type Watcher struct {
	store  *store.Store
	reg    *schema.Registry
	cache  *Cache
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher wires a watcher to the store, registry and cache.
func NewWatcher(st *store.Store, reg *schema.Registry, c *Cache) *Watcher {
	return &Watcher{store: st, reg: reg, cache: c}
}

// Start launches one watch loop per collection.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for _, name := range w.reg.Names() {
		w.wg.Add(1)
		go w.watch(ctx, name)
	}
}

// Stop cancels the watch loops and waits for them to drain.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) watch(ctx context.Context, collection string) {
	defer w.wg.Done()
	telemetry.LiveWatchers.Inc()
	defer telemetry.LiveWatchers.Dec()
	for ctx.Err() == nil {
		cs, err := w.store.Watch(ctx, collection)
		if err != nil {
			logger.Warn("cache_watch_failed", "collection", collection, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for cs.Next(ctx) {
			var ev store.ChangeEvent
			if err := cs.Decode(&ev); err != nil {
				logger.Warn("cache_event_decode_failed", "collection", collection, "error", err)
				continue
			}
			w.handle(ctx, collection, ev)
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("cache_stream_closed", "collection", collection, "error", err)
		}
		_ = cs.Close(context.Background())
	}
}

// handle must stay non-blocking relative to the stream: evictions are map
// operations, only the delete cascade touches mongo.
func (w *Watcher) handle(ctx context.Context, collection string, ev store.ChangeEvent) {
	id := ev.DocumentKey.ID
	if w.reg.Reserved(collection) {
		// membership-style filters make the docID index insufficient here
		w.cache.FlushCollection(collection, ReasonWrite)
	} else {
		w.cache.InvalidateDoc(collection, id, ReasonChangeStream)
	}
	if w.isDelete(ev) {
		w.cascade(ctx, collection, id)
	}
}

// isDelete covers both physical removal (retention sweep) and an update
// whose post-image gained _expires_at, which is how mutations delete.
func (w *Watcher) isDelete(ev store.ChangeEvent) bool {
	if ev.OperationType == "delete" {
		return true
	}
	if ev.OperationType != "update" {
		return false
	}
	_, gained := ev.UpdateDescription.UpdatedFields[model.FieldExpiresAt]
	return gained
}

// cascade hard-deletes dependents of the removed document in reserved
// collections (a deleted user takes its sessions with it). Best effort:
// partial failures are logged, not rolled back.
func (w *Watcher) cascade(ctx context.Context, collection, id string) {
	encoded := schema.Pointer{Collection: collection, ID: id}.Encode()
	for _, name := range w.reg.Names() {
		col, err := w.reg.Get(name)
		if err != nil || !col.Reserved {
			continue
		}
		for _, f := range col.PointerFields(collection) {
			filter := bson.M{f.Name: bson.M{"$in": bson.A{id, encoded}}}
			n, err := w.store.DeleteMany(ctx, name, filter)
			if err != nil {
				logger.Error("cascade_delete_failed", "collection", name, "field", f.Name, "error", err)
				continue
			}
			if n > 0 {
				logger.Info("cascade_deleted", "collection", name, "field", f.Name, "count", n)
				w.cache.FlushCollection(name, ReasonCascade)
			}
		}
	}
}
