// Package iql executes nested graph queries against the local replica.
// A query is a tree whose keys name collections; each node may carry
// directives ($limit, $skip, $filter, $sort, $by) and nest child
// collection keys that fan out through pointer relationships.
package iql

import (
	"errors"
	"fmt"

	"github.com/stewones/borda-sub001/pkg/client/local"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

// ErrAmbiguousPointer is returned when a child schema has more than one
// pointer field targeting the parent collection and the node carries no
// $by directive to disambiguate.
var ErrAmbiguousPointer = errors.New("ambiguous pointer")

// Node is one level of an iQL tree. Keys starting with '$' are
// directives; every other key is a child collection.
type Node = map[string]any

// Executor resolves iQL trees against a local store.
type Executor struct {
	store *local.Store
	reg   *schema.Registry
}

// New returns an executor bound to the given replica.
func New(store *local.Store) *Executor {
	return &Executor{store: store, reg: store.Registry()}
}

// Execute resolves every root key of the query and returns a mapping of
// root key -> resolved documents, each augmented in place with its child
// arrays. Unknown root collections fail the whole query; errors inside
// one branch never abort sibling branches and are joined into the
// returned error alongside the partial result.
func (e *Executor) Execute(query Node) (map[string][]model.Document, error) {
	// fail fast on malformed trees before resolving anything
	for key := range query {
		if isDirective(key) {
			return nil, fmt.Errorf("directive %q is not allowed at the query root", key)
		}
		if _, err := e.collectionFor(key); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]model.Document, len(query))
	var errs []error
	for key, raw := range query {
		node, _ := raw.(map[string]any)
		collection, _ := e.collectionFor(key)
		docs, err := e.store.List(collection, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			out[key] = []model.Document{}
			continue
		}
		docs = applyDirectives(docs, node)
		if err := e.resolveChildren(collection, docs, node); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		out[key] = docs
	}
	return out, errors.Join(errs...)
}

// resolveChildren fans each child key of node out across the parent
// documents, recursing into grandchildren with the child as new parent.
func (e *Executor) resolveChildren(parentCollection string, parents []model.Document, node Node) error {
	var errs []error
	for key, raw := range node {
		if isDirective(key) {
			continue
		}
		child, _ := raw.(map[string]any)
		childCollection, err := e.collectionFor(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		link, ok, err := e.linkField(childCollection, parentCollection, child)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, parent := range parents {
			if !ok {
				parent[key] = []model.Document{}
				continue
			}
			docs, err := e.linked(childCollection, link, parentCollection, parent.ID())
			if err != nil {
				errs = append(errs, err)
				parent[key] = []model.Document{}
				continue
			}
			docs = applyDirectives(docs, child)
			if err := e.resolveChildren(childCollection, docs, child); err != nil {
				errs = append(errs, err)
			}
			parent[key] = docs
		}
	}
	return errors.Join(errs...)
}

// collectionFor maps a query key to a registered collection, accepting
// the plural form of the collection name.
func (e *Executor) collectionFor(key string) (string, error) {
	if e.reg.Has(key) {
		return key, nil
	}
	if singular := schema.Singular(key); e.reg.Has(singular) {
		return singular, nil
	}
	return "", fmt.Errorf("%w: %q", schema.ErrUnknownCollection, key)
}

// linkField picks the child field joining it to the parent. The pointer
// scan is authoritative; $by resolves multi-pointer ambiguity or names a
// plain back-reference; the singularized parent name is a compatibility
// fallback. No candidate at all fixes the child to an empty array.
func (e *Executor) linkField(childCollection, parentCollection string, node Node) (string, bool, error) {
	by, _ := node["$by"].(string)
	child, err := e.reg.Get(childCollection)
	if err != nil {
		return "", false, err
	}
	pointers := child.PointerFields(parentCollection)
	switch len(pointers) {
	case 1:
		return pointers[0].Name, true, nil
	case 0:
		// no pointer; fall through to $by and naming convention
	default:
		if by == "" {
			names := make([]string, len(pointers))
			for i, f := range pointers {
				names[i] = f.Name
			}
			return "", false, fmt.Errorf("%w: %s has pointer fields %v targeting %s, use $by", ErrAmbiguousPointer, childCollection, names, parentCollection)
		}
		return by, true, nil
	}
	if by != "" {
		return by, true, nil
	}
	if implicit := schema.Singular(parentCollection); child.HasField(implicit) {
		return implicit, true, nil
	}
	return "", false, nil
}

// linked fetches child documents whose link field references the parent,
// matching either the encoded pointer or the bare parent id.
func (e *Executor) linked(collection, field, parentCollection, parentID string) ([]model.Document, error) {
	encoded := schema.Pointer{Collection: parentCollection, ID: parentID}.Encode()
	if e.indexed(collection, field) {
		docs, err := e.store.LookupIndex(collection, field, encoded)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			return docs, nil
		}
		return e.store.LookupIndex(collection, field, parentID)
	}
	all, err := e.store.List(collection, 0)
	if err != nil {
		return nil, err
	}
	out := []model.Document{}
	for _, doc := range all {
		if v, ok := doc[field].(string); ok && (v == encoded || v == parentID) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (e *Executor) indexed(collection, field string) bool {
	for _, f := range e.reg.IndexedFields(collection) {
		if f == field {
			return true
		}
	}
	return false
}

func isDirective(key string) bool {
	return len(key) > 0 && key[0] == '$'
}
