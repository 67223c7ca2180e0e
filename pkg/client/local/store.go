package local

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

// ErrNotFound is returned when a document id is absent from the replica.
var ErrNotFound = errors.New("document not found")

// Store is the client-side replica. All writes go through a pebble batch
// so document, index and cursor mutations land as one atomic unit.
type Store struct {
	db  *pebble.DB
	reg *schema.Registry
}

// Open opens (or creates) the replica at the given path.
func Open(path string, reg *schema.Registry) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err.Error())
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, reg: reg}, nil
}

// Close closes the underlying pebble DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Registry exposes the schema registry the store was opened with.
func (s *Store) Registry() *schema.Registry { return s.reg }

// Get loads one document by id.
func (s *Store) Get(collection, id string) (model.Document, error) {
	if !s.reg.Has(collection) {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownCollection, collection)
	}
	v, closer, err := s.db.Get(docKey(collection, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return nil, err
	}
	defer closer.Close()
	var doc model.Document
	if err := json.Unmarshal(v, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Put upserts one document, maintaining the created-order and field
// indexes in the same batch.
func (s *Store) Put(collection string, doc model.Document) error {
	if !s.reg.Has(collection) {
		return fmt.Errorf("%w: %q", schema.ErrUnknownCollection, collection)
	}
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("put %s: document has no _id", collection)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := s.stagePut(b, collection, doc); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("put_document_failed", "collection", collection, "id", id, "error", err.Error())
		return err
	}
	return nil
}

// Delete hard removes one document and its index entries. Tombstones are
// not kept on the replica; the server retains history.
func (s *Store) Delete(collection, id string) error {
	if !s.reg.Has(collection) {
		return fmt.Errorf("%w: %q", schema.ErrUnknownCollection, collection)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := s.stageDelete(b, collection, id); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// stagePut stages a document write plus index maintenance on the batch.
func (s *Store) stagePut(b *pebble.Batch, collection string, doc model.Document) error {
	id := doc.ID()
	if prev, err := s.Get(collection, id); err == nil {
		s.stageUnindex(b, collection, prev)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if err := b.Set(docKey(collection, id), data, nil); err != nil {
		return err
	}
	if err := b.Set(crtKey(collection, doc.CreatedAt(), id), []byte(id), nil); err != nil {
		return err
	}
	for _, field := range s.reg.IndexedFields(collection) {
		if v, ok := doc[field].(string); ok && v != "" {
			if err := b.Set(idxKey(collection, field, v, id), []byte(id), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// stageDelete stages a hard delete plus index cleanup on the batch.
func (s *Store) stageDelete(b *pebble.Batch, collection, id string) error {
	prev, err := s.Get(collection, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	s.stageUnindex(b, collection, prev)
	return b.Delete(docKey(collection, id), nil)
}

func (s *Store) stageUnindex(b *pebble.Batch, collection string, prev model.Document) {
	id := prev.ID()
	_ = b.Delete(crtKey(collection, prev.CreatedAt(), id), nil)
	for _, field := range s.reg.IndexedFields(collection) {
		if v, ok := prev[field].(string); ok && v != "" {
			_ = b.Delete(idxKey(collection, field, v, id), nil)
		}
	}
}

// List returns up to limit documents in _created_at descending order.
// Documents carrying _expires_at are skipped; limit <= 0 means all.
func (s *Store) List(collection string, limit int) ([]model.Document, error) {
	if !s.reg.Has(collection) {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownCollection, collection)
	}
	prefix := crtPrefix(collection)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := []model.Document{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		id := string(iter.Value())
		doc, err := s.Get(collection, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if doc.IsTombstone() {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// LookupIndex returns the documents whose indexed field equals value.
func (s *Store) LookupIndex(collection, field, value string) ([]model.Document, error) {
	if !s.reg.Has(collection) {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownCollection, collection)
	}
	prefix := idxPrefix(collection, field, value)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := []model.Document{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		doc, err := s.Get(collection, string(iter.Value()))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if doc.IsTombstone() {
			continue
		}
		out = append(out, doc)
	}
	return out, iter.Error()
}

// Clear drops all documents, indexes and cursors for a collection.
func (s *Store) Clear(collection string) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, prefix := range [][]byte{
		docPrefix(collection),
		crtPrefix(collection),
		idxCollectionPrefix(collection),
		cursorPrefix(collection),
	} {
		if err := b.DeleteRange(prefix, prefixUpperBound(prefix), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return err
	}
	logger.Info("collection_cleared", "collection", collection)
	return nil
}
