// Package cache memoizes query results under a TTL'd LRU and invalidates
// them eagerly from the collections' change streams.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/server/query"
	"github.com/stewones/borda-sub001/pkg/telemetry"
)

// Invalidation reason labels.
const (
	ReasonChangeStream = "change_stream"
	ReasonWrite        = "write"
	ReasonCascade      = "cascade"
	ReasonClear        = "clear"
)

type entry struct {
	collection string
	docs       []model.Document
	ids        []string
}

// Cache is the server query cache: an expirable LRU plus inverted indexes
// so a document change can evict exactly the entries that referenced it.
type Cache struct {
	lru *expirable.LRU[string, entry]

	mu     sync.Mutex
	byDoc  map[string]map[string]struct{} // collection/docID -> cache keys
	byColl map[string]map[string]struct{} // collection -> cache keys
}

// New builds a cache holding at most maxEntries results for at most ttl.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		byDoc:  make(map[string]map[string]struct{}),
		byColl: make(map[string]map[string]struct{}),
	}
	c.lru = expirable.NewLRU[string, entry](maxEntries, c.onEvict, ttl)
	return c
}

// Key derives the cache key for a query: SHA-1 over the canonical JSON of
// the fully-resolved request. encoding/json sorts map keys, so equal
// queries produce equal bytes.
func Key(collection, method string, d query.Description) (string, error) {
	payload := struct {
		Collection string           `json:"collection"`
		Method     string           `json:"method"`
		Filter     map[string]any   `json:"filter,omitempty"`
		Sort       map[string]any   `json:"sort,omitempty"`
		Projection map[string]any   `json:"projection,omitempty"`
		Pipeline   []map[string]any `json:"pipeline,omitempty"`
		Limit      int64            `json:"limit,omitempty"`
		Skip       int64            `json:"skip,omitempty"`
	}{collection, method, d.Filter, d.Sort, d.Projection, d.Pipeline, d.Limit, d.Skip}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to derive cache key: %w", err)
	}
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the memoized result for a key.
func (c *Cache) Get(key string) ([]model.Document, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		telemetry.CacheMissesTotal.Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.Inc()
	return e.docs, true
}

// Put memoizes a result set and records which documents it references.
func (c *Cache) Put(key, collection string, docs []model.Document) {
	e := entry{collection: collection, docs: docs}
	for _, d := range docs {
		if id := d.ID(); id != "" {
			e.ids = append(e.ids, id)
		}
	}
	c.mu.Lock()
	for _, id := range e.ids {
		ref := collection + "/" + id
		if c.byDoc[ref] == nil {
			c.byDoc[ref] = make(map[string]struct{})
		}
		c.byDoc[ref][key] = struct{}{}
	}
	if c.byColl[collection] == nil {
		c.byColl[collection] = make(map[string]struct{})
	}
	c.byColl[collection][key] = struct{}{}
	c.mu.Unlock()
	c.lru.Add(key, e)
}

// InvalidateDoc evicts every entry whose result set referenced the
// document, regardless of remaining TTL.
func (c *Cache) InvalidateDoc(collection, id, reason string) {
	c.mu.Lock()
	keys := keysOf(c.byDoc[collection+"/"+id])
	c.mu.Unlock()
	c.evict(keys, reason)
}

// FlushCollection evicts every entry keyed under the collection. Reserved
// collections use this on any write, since membership filters make the
// docID index insufficient there.
func (c *Cache) FlushCollection(collection, reason string) {
	c.mu.Lock()
	keys := keysOf(c.byColl[collection])
	c.mu.Unlock()
	c.evict(keys, reason)
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) evict(keys []string, reason string) {
	for _, key := range keys {
		if c.lru.Remove(key) {
			telemetry.CacheInvalidationsTotal.WithLabelValues(reason).Inc()
		}
	}
}

// onEvict runs inside the LRU on removal and expiry; it must only touch
// the inverted indexes.
func (c *Cache) onEvict(key string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range e.ids {
		ref := e.collection + "/" + id
		delete(c.byDoc[ref], key)
		if len(c.byDoc[ref]) == 0 {
			delete(c.byDoc, ref)
		}
	}
	delete(c.byColl[e.collection], key)
	if len(c.byColl[e.collection]) == 0 {
		delete(c.byColl, e.collection)
	}
}

func keysOf(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
