package schema

import (
	"errors"
	"fmt"
	"strings"
)

// pointerSep joins the collection name and identifier in the wire encoding
// of a pointer, e.g. "user$01ARZ3NDEKTSV4RRFFQ69G5FAV".
const pointerSep = "$"

var ErrMalformedPointer = errors.New("malformed pointer")

// Pointer is a typed cross-collection reference.
type Pointer struct {
	Collection string
	ID         string
}

// Encode serializes the pointer as "<collection>$<id>".
func (p Pointer) Encode() string {
	return p.Collection + pointerSep + p.ID
}

func (p Pointer) String() string { return p.Encode() }

// DecodePointer parses "<collection>$<id>". Both halves must be non-empty;
// the id may itself contain the separator.
func DecodePointer(s string) (Pointer, error) {
	i := strings.Index(s, pointerSep)
	if i <= 0 || i == len(s)-1 {
		return Pointer{}, fmt.Errorf("%w: %q", ErrMalformedPointer, s)
	}
	return Pointer{Collection: s[:i], ID: s[i+1:]}, nil
}

// Singular strips a trailing "s" from a collection key. Query trees may
// name collections in plural form ("users"); stored schemas are singular.
func Singular(name string) string {
	if len(name) > 1 && strings.HasSuffix(name, "s") {
		return name[:len(name)-1]
	}
	return name
}
