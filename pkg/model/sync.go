package model

import "time"

// SyncStatus classifies a document inside a pull-sync batch.
type SyncStatus string

const (
	StatusCreated SyncStatus = "created"
	StatusUpdated SyncStatus = "updated"
	StatusDeleted SyncStatus = "deleted"
)

// SyncActivity is the direction of a pull-sync pass.
type SyncActivity string

const (
	ActivityRecent SyncActivity = "recent" // forward from now
	ActivityOldest SyncActivity = "oldest" // backward to the beginning of history
)

// SyncEntry is a single classified document in a batch.
type SyncEntry struct {
	Status SyncStatus `json:"status"`
	Value  Document   `json:"value"`
}

// SyncBatch is the pull-sync response payload.
type SyncBatch struct {
	Collection string       `json:"collection"`
	Count      int          `json:"count"`
	Activity   SyncActivity `json:"activity"`
	Synced     string       `json:"synced"`
	Data       []SyncEntry  `json:"data"`
}

// StatusOf classifies a document the way both the batch channel and the
// live channel must agree on: a tombstone is always "deleted"; otherwise a
// document whose _created_at and _updated_at differ by at most tolerance is
// "created", else "updated". The tolerance absorbs storage-layer rounding
// that could make a just-created document register as updated.
func StatusOf(doc Document, tolerance time.Duration) SyncStatus {
	if doc.IsTombstone() {
		return StatusDeleted
	}
	created := doc.CreatedAt()
	updated := doc.UpdatedAt()
	diff := updated.Sub(created)
	if diff < 0 {
		diff = -diff
	}
	if diff <= tolerance {
		return StatusCreated
	}
	return StatusUpdated
}
