package local

import (
	"fmt"
	"time"
)

// Pebble key layout. A forward scan over the crt: prefix yields documents
// in _created_at descending order because the timestamp is inverted.
//
//	doc:<collection>:<id>                 -> document JSON
//	crt:<collection>:<inverse-ts>:<id>    -> id
//	idx:<collection>:<field>:<value>:<id> -> id
//	cursor:<collection>:<activity>        -> cursor JSON
func docKey(collection, id string) []byte {
	return []byte("doc:" + collection + ":" + id)
}

func docPrefix(collection string) []byte {
	return []byte("doc:" + collection + ":")
}

func crtKey(collection string, created time.Time, id string) []byte {
	inv := ^uint64(0) - uint64(created.UTC().UnixNano())
	return []byte(fmt.Sprintf("crt:%s:%020d:%s", collection, inv, id))
}

func crtPrefix(collection string) []byte {
	return []byte("crt:" + collection + ":")
}

func idxKey(collection, field, value, id string) []byte {
	return []byte("idx:" + collection + ":" + field + ":" + value + ":" + id)
}

func idxPrefix(collection, field, value string) []byte {
	return []byte("idx:" + collection + ":" + field + ":" + value + ":")
}

func idxCollectionPrefix(collection string) []byte {
	return []byte("idx:" + collection + ":")
}

func cursorKey(collection, activity string) []byte {
	return []byte("cursor:" + collection + ":" + activity)
}

func cursorPrefix(collection string) []byte {
	return []byte("cursor:" + collection + ":")
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for range deletes.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
