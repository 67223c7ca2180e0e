// Package syncapi serves the pull-sync batch channel: paged, cursor-driven
// reads of everything that changed in a collection, tombstones included.
package syncapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/telemetry"
	"github.com/stewones/borda-sub001/pkg/utils"
)

// Handler answers GET /sync/{collection}?activity=&synced=.
type Handler struct {
	store     *store.Store
	reg       *schema.Registry
	pageSize  int
	tolerance time.Duration
}

// New builds the sync handler. pageSize caps documents per batch;
// tolerance is the created/updated equality window for status
// classification.
func New(st *store.Store, reg *schema.Registry, pageSize int, tolerance time.Duration) *Handler {
	if pageSize <= 0 {
		pageSize = 100
	}
	if tolerance <= 0 {
		tolerance = time.Millisecond
	}
	return &Handler{store: st, reg: reg, pageSize: pageSize, tolerance: tolerance}
}

// ServeHTTP implements the batch endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	col, err := h.reg.Get(collection)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if col.Reserved && !auth.Unlocked(r.Context()) {
		utils.JSONError(w, http.StatusForbidden, fmt.Sprintf("collection %q is reserved", collection))
		return
	}

	activity := model.SyncActivity(r.URL.Query().Get("activity"))
	if activity == "" {
		activity = model.ActivityRecent
	}
	if activity != model.ActivityRecent && activity != model.ActivityOldest {
		utils.JSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown activity %q", activity))
		return
	}

	batch, err := h.Batch(r.Context(), collection, activity, r.URL.Query().Get("synced"))
	if err != nil {
		telemetry.SyncBatchesTotal.WithLabelValues(collection, string(activity), "error").Inc()
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.SyncBatchesTotal.WithLabelValues(collection, string(activity), "ok").Inc()
	_ = utils.JSONWrite(w, http.StatusOK, batch)
}

// Batch assembles one page of the given direction. recent walks forward
// (_updated_at > synced, ascending), oldest walks backward (< synced,
// descending). An absent watermark means "now" for both, so a fresh client
// streams history backwards while tailing new writes forwards.
func (h *Handler) Batch(ctx context.Context, collection string, activity model.SyncActivity, synced string) (*model.SyncBatch, error) {
	if synced == "" {
		synced = time.Now().UTC().Format(model.TimeLayout)
	}

	var filter bson.M
	var dir int
	if activity == model.ActivityOldest {
		filter = bson.M{model.FieldUpdatedAt: bson.M{"$lt": synced}}
		dir = -1
	} else {
		filter = bson.M{model.FieldUpdatedAt: bson.M{"$gt": synced}}
		dir = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: model.FieldUpdatedAt, Value: dir}}).
		SetLimit(int64(h.pageSize))
	cur, err := h.store.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to page %s: %w", collection, err)
	}
	var docs []model.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s page: %w", collection, err)
	}

	batch := &model.SyncBatch{
		Collection: collection,
		Count:      len(docs),
		Activity:   activity,
		Synced:     synced,
		Data:       make([]model.SyncEntry, 0, len(docs)),
	}
	for _, doc := range docs {
		status := model.StatusOf(doc, h.tolerance)
		batch.Data = append(batch.Data, model.SyncEntry{Status: status, Value: doc})
		telemetry.SyncDocumentsTotal.WithLabelValues(collection, string(status)).Inc()
	}
	if len(docs) > 0 {
		// the next watermark is the last record's _updated_at
		last := docs[len(docs)-1]
		if ts, ok := last[model.FieldUpdatedAt].(string); ok {
			batch.Synced = ts
		}
	}
	return batch, nil
}

// Routes mounts the handler on the router.
func (h *Handler) Routes(r *mux.Router) {
	r.Handle("/sync/{collection}", h).Methods(http.MethodGet)
}
