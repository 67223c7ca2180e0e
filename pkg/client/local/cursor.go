package local

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
)

// Cursor tracks per-collection, per-activity sync progress. Synced is the
// _updated_at watermark of the last applied batch; Drained means the
// server reported fewer documents than a full page.
type Cursor struct {
	Synced  string `json:"synced"`
	Drained bool   `json:"drained"`
}

// Cursor loads the persisted cursor for a collection/activity pair. The
// second return is false when no cursor has been written yet.
func (s *Store) Cursor(collection string, activity model.SyncActivity) (Cursor, bool, error) {
	v, closer, err := s.db.Get(cursorKey(collection, string(activity)))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Cursor{}, false, nil
		}
		return Cursor{}, false, err
	}
	defer closer.Close()
	var cur Cursor
	if err := json.Unmarshal(v, &cur); err != nil {
		return Cursor{}, false, fmt.Errorf("decode cursor %s/%s: %w", collection, activity, err)
	}
	return cur, true, nil
}

// SetCursor persists a cursor outside of a sync batch. Sync applies should
// use ApplySyncBatch instead so cursor and documents commit together.
func (s *Store) SetCursor(collection string, activity model.SyncActivity, cur Cursor) error {
	data, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	return s.db.Set(cursorKey(collection, string(activity)), data, pebble.Sync)
}

// ApplySyncBatch applies a server batch and advances the cursor in one
// pebble batch. A failure anywhere leaves both documents and cursor
// untouched, so the next pull replays from the same watermark.
func (s *Store) ApplySyncBatch(collection string, activity model.SyncActivity, entries []model.SyncEntry, cur Cursor) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		switch e.Status {
		case model.StatusDeleted:
			id := e.Value.ID()
			if id == "" {
				return fmt.Errorf("apply %s: deleted entry has no _id", collection)
			}
			if err := s.stageDelete(b, collection, id); err != nil {
				return err
			}
		default:
			if err := s.stagePut(b, collection, e.Value); err != nil {
				return err
			}
		}
	}
	data, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	if err := b.Set(cursorKey(collection, string(activity)), data, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("apply_sync_batch_failed", "collection", collection, "activity", string(activity), "error", err.Error())
		return err
	}
	logger.Debug("sync_batch_applied", "collection", collection, "activity", string(activity), "count", len(entries), "synced", cur.Synced)
	return nil
}
