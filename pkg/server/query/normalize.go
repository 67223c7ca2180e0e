package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/stewones/borda-sub001/pkg/model"
)

// Compatibility aliases kept for callers that still use the pre-rename
// field names. The storage names always win.
var fieldAliases = map[string]string{
	"objectId":  model.FieldID,
	"createdAt": model.FieldCreatedAt,
	"updatedAt": model.FieldUpdatedAt,
	"expiresAt": model.FieldExpiresAt,
}

// NormalizeField maps an aliased field name to its storage name. Dotted
// paths are normalized on their first segment only.
func NormalizeField(name string) string {
	head, rest, dotted := strings.Cut(name, ".")
	if mapped, ok := fieldAliases[head]; ok {
		head = mapped
	}
	if dotted {
		return head + "." + rest
	}
	return head
}

// NormalizeMap rewrites aliased field names throughout a filter, recursing
// through operator maps and array operands. Operator keys ($gt, $in, ...)
// pass through untouched.
func NormalizeMap(m map[string]any) bson.M {
	out := bson.M{}
	for k, v := range m {
		if !strings.HasPrefix(k, "$") {
			k = NormalizeField(k)
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return NormalizeMap(t)
	case bson.M:
		return NormalizeMap(t)
	case []any:
		arr := make([]any, len(t))
		for i, e := range t {
			arr[i] = normalizeValue(e)
		}
		return arr
	default:
		return v
	}
}
