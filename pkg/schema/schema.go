package schema

import (
	"errors"
	"fmt"
	"strings"
)

// FieldKind is a tagged field classification resolved at startup; no
// runtime type probing happens after registry construction.
type FieldKind string

const (
	KindScalar     FieldKind = "scalar"
	KindIdentifier FieldKind = "identifier"
	KindPointer    FieldKind = "pointer"
)

// Field describes one column of a collection. Target names the referenced
// collection and is only meaningful for pointer fields.
type Field struct {
	Name   string    `yaml:"name" json:"name"`
	Kind   FieldKind `yaml:"kind" json:"kind"`
	Target string    `yaml:"target,omitempty" json:"target,omitempty"`
}

// Collection is the typed description of one document table. Reserved
// collections (sessions and the like) reject queries from callers without
// the unlocked capability.
type Collection struct {
	Name     string  `yaml:"name" json:"name"`
	Reserved bool    `yaml:"reserved,omitempty" json:"reserved,omitempty"`
	Fields   []Field `yaml:"fields" json:"fields"`
}

// PointerFields returns the pointer fields targeting the given collection.
func (c Collection) PointerFields(target string) []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Kind == KindPointer && f.Target == target {
			out = append(out, f)
		}
	}
	return out
}

// HasField reports whether the collection declares a field with this name.
func (c Collection) HasField(name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidSchema     = errors.New("invalid schema")
)

// Registry is the static table of collection schemas, built once at
// process start and read-only afterwards.
type Registry struct {
	byName map[string]Collection
	order  []string
}

// NewRegistry validates the collection definitions and builds the lookup
// table. Names must be singular lowercase; each collection needs exactly
// one identifier field; pointer targets must exist in the same registry.
func NewRegistry(cols []Collection) (*Registry, error) {
	r := &Registry{byName: make(map[string]Collection, len(cols))}
	for _, c := range cols {
		if c.Name == "" || c.Name != strings.ToLower(c.Name) {
			return nil, fmt.Errorf("%w: collection name %q must be lowercase", ErrInvalidSchema, c.Name)
		}
		if strings.HasSuffix(c.Name, "s") {
			return nil, fmt.Errorf("%w: collection name %q must be singular", ErrInvalidSchema, c.Name)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate collection %q", ErrInvalidSchema, c.Name)
		}
		ids := 0
		for _, f := range c.Fields {
			switch f.Kind {
			case KindIdentifier:
				ids++
			case KindPointer:
				if f.Target == "" {
					return nil, fmt.Errorf("%w: pointer field %s.%s has no target", ErrInvalidSchema, c.Name, f.Name)
				}
			case KindScalar:
			default:
				return nil, fmt.Errorf("%w: field %s.%s has unknown kind %q", ErrInvalidSchema, c.Name, f.Name, f.Kind)
			}
		}
		if ids != 1 {
			return nil, fmt.Errorf("%w: collection %q must declare exactly one identifier field, got %d", ErrInvalidSchema, c.Name, ids)
		}
		r.byName[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	// pointer targets are resolved after all collections are known
	for _, c := range cols {
		for _, f := range c.Fields {
			if f.Kind == KindPointer {
				if _, ok := r.byName[f.Target]; !ok {
					return nil, fmt.Errorf("%w: pointer field %s.%s targets unknown collection %q", ErrInvalidSchema, c.Name, f.Name, f.Target)
				}
			}
		}
	}
	return r, nil
}

// Get returns the schema for a collection name.
func (r *Registry) Get(name string) (Collection, error) {
	c, ok := r.byName[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return c, nil
}

// Has reports whether the collection is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Reserved reports whether the named collection is reserved. Unknown
// collections are not reserved.
func (r *Registry) Reserved(name string) bool {
	c, ok := r.byName[name]
	return ok && c.Reserved
}

// Names returns registered collection names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IndexedFields returns the fields of a collection that the local store
// maintains equality indexes for: every pointer field plus any scalar field
// matching a registered collection's singular name (the implicit
// back-reference convention).
func (r *Registry) IndexedFields(name string) []string {
	c, ok := r.byName[name]
	if !ok {
		return nil
	}
	var out []string
	for _, f := range c.Fields {
		if f.Kind == KindPointer {
			out = append(out, f.Name)
			continue
		}
		if f.Kind == KindScalar && r.Has(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}
