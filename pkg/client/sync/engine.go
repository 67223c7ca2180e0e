package sync

import (
	"context"

	"github.com/stewones/borda-sub001/pkg/client/local"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
)

// Engine drains the server backlog for a collection in two interleaved
// passes and applies batches atomically to the local replica.
type Engine struct {
	store    *local.Store
	client   *Client
	pageSize int
}

// NewEngine builds an engine over the given replica and batch client.
func NewEngine(store *local.Store, client *Client, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Engine{store: store, client: client, pageSize: pageSize}
}

// Sync interleaves recent and oldest passes until both report drained.
// Cursors advance only with fully applied batches, so any failure leaves
// the replica consistent and the next call resumes from the watermark.
func (e *Engine) Sync(ctx context.Context, collection string) error {
	recentDone, oldestDone := false, false
	for !recentDone || !oldestDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !recentDone {
			drained, err := e.pass(ctx, collection, model.ActivityRecent)
			if err != nil {
				return err
			}
			recentDone = drained
		}
		if !oldestDone {
			drained, err := e.pass(ctx, collection, model.ActivityOldest)
			if err != nil {
				return err
			}
			oldestDone = drained
		}
	}
	return nil
}

// pass pulls and applies one batch. It reports drained when the server
// returned fewer documents than a full page. The oldest direction stays
// drained once history is exhausted; recent always re-checks.
func (e *Engine) pass(ctx context.Context, collection string, activity model.SyncActivity) (bool, error) {
	cur, _, err := e.store.Cursor(collection, activity)
	if err != nil {
		return false, err
	}
	if activity == model.ActivityOldest && cur.Drained {
		return true, nil
	}

	batch, err := e.client.Fetch(ctx, collection, activity, cur.Synced)
	if err != nil {
		logger.Warn("sync_fetch_failed", "collection", collection, "activity", string(activity), "error", err.Error())
		return false, err
	}

	drained := batch.Count < e.pageSize
	if batch.Count == 0 {
		// The server echoes its clock when the client has no watermark.
		// Persist it, or a collection that starts out empty keeps asking
		// from "" and never sees documents written after the first drain.
		next := cur
		next.Drained = drained
		if batch.Synced != "" {
			next.Synced = batch.Synced
		}
		if next != cur {
			if err := e.store.SetCursor(collection, activity, next); err != nil {
				return false, err
			}
		}
		return drained, nil
	}

	next := local.Cursor{Synced: batch.Synced, Drained: drained}
	if err := e.store.ApplySyncBatch(collection, activity, batch.Data, next); err != nil {
		return false, err
	}
	logger.Debug("sync_pass_applied", "collection", collection, "activity", string(activity), "count", batch.Count, "drained", drained)
	return drained, nil
}
