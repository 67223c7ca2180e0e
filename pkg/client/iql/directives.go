package iql

import (
	"sort"

	"github.com/stewones/borda-sub001/pkg/model"
)

// applyDirectives runs $filter -> $sort -> $skip -> $limit over docs.
// A node with no directives returns the set unchanged.
func applyDirectives(docs []model.Document, node Node) []model.Document {
	if node == nil {
		return docs
	}
	if filter, ok := node["$filter"].(map[string]any); ok {
		kept := docs[:0:0]
		for _, doc := range docs {
			if doc.Matches(filter) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if spec, ok := node["$sort"].(map[string]any); ok {
		docs = sortDocs(docs, spec)
	}
	if skip, ok := asInt(node["$skip"]); ok && skip > 0 {
		if skip >= len(docs) {
			docs = []model.Document{}
		} else {
			docs = docs[skip:]
		}
	}
	if limit, ok := asInt(node["$limit"]); ok && limit >= 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func sortDocs(docs []model.Document, spec map[string]any) []model.Document {
	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	out := append([]model.Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, f := range fields {
			dir, _ := asInt(spec[f])
			c := model.Compare(out[i][f], out[j][f])
			if c == 0 {
				continue
			}
			if dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
