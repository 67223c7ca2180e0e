package model

import (
	"time"
)

// System fields present on every document. Timestamps are RFC3339 strings
// in UTC. A document carrying FieldExpiresAt is a tombstone: logically
// deleted but kept in the authoritative store until the retention sweep
// removes it.
const (
	FieldID        = "_id"
	FieldCreatedAt = "_created_at"
	FieldUpdatedAt = "_updated_at"
	FieldExpiresAt = "_expires_at"
)

// TimeLayout is the wire format for all system timestamps. Nanoseconds are
// fixed-width so lexicographic order equals temporal order; sync watermarks
// and the retention cutoff compare these as plain strings.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ParseTime parses a system timestamp. It is deliberately looser than
// TimeLayout: values written before the fixed-width layout carry trimmed
// fractions, and RFC3339Nano accepts any width.
func ParseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// Document is a schemaless field->value mapping plus the system fields.
type Document map[string]any

// ID returns the document identifier or "" when absent.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// SetID sets the document identifier.
func (d Document) SetID(id string) { d[FieldID] = id }

// CreatedAt returns the parsed _created_at, or the zero time when absent
// or malformed.
func (d Document) CreatedAt() time.Time { return d.timeField(FieldCreatedAt) }

// UpdatedAt returns the parsed _updated_at, or the zero time when absent
// or malformed.
func (d Document) UpdatedAt() time.Time { return d.timeField(FieldUpdatedAt) }

// ExpiresAt returns the parsed _expires_at and whether it is present.
func (d Document) ExpiresAt() (time.Time, bool) {
	if _, ok := d[FieldExpiresAt]; !ok {
		return time.Time{}, false
	}
	return d.timeField(FieldExpiresAt), true
}

// IsTombstone reports whether the document is logically deleted.
func (d Document) IsTombstone() bool {
	_, ok := d[FieldExpiresAt]
	return ok
}

// Stamp initializes _created_at/_updated_at for a brand new document.
func (d Document) Stamp(now time.Time) {
	ts := now.UTC().Format(TimeLayout)
	d[FieldCreatedAt] = ts
	d[FieldUpdatedAt] = ts
}

// Touch advances _updated_at, keeping it monotonically non-decreasing and
// never below _created_at.
func (d Document) Touch(now time.Time) {
	now = now.UTC()
	if prev := d.UpdatedAt(); now.Before(prev) {
		now = prev
	}
	if created := d.CreatedAt(); now.Before(created) {
		now = created
	}
	d[FieldUpdatedAt] = now.Format(TimeLayout)
}

// Tombstone marks the document logically deleted. The pre-delete field
// values are retained so afterDelete hooks still see them. _expires_at is
// clamped to be >= _updated_at.
func (d Document) Tombstone(now time.Time) {
	d.Touch(now)
	exp := now.UTC()
	if u := d.UpdatedAt(); exp.Before(u) {
		exp = u
	}
	d[FieldExpiresAt] = exp.Format(TimeLayout)
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (d Document) timeField(key string) time.Time {
	switch v := d[key].(type) {
	case string:
		t, err := ParseTime(v)
		if err != nil {
			return time.Time{}
		}
		return t
	case time.Time:
		return v.UTC()
	default:
		return time.Time{}
	}
}
