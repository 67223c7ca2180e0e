package model

import "testing"

func TestMatchesOperators(t *testing.T) {
	doc := Document{"age": 30.0, "name": "alice"}
	cases := []struct {
		filter map[string]any
		want   bool
	}{
		{map[string]any{"name": "alice"}, true},
		{map[string]any{"name": "bob"}, false},
		{map[string]any{"age": map[string]any{"$gt": 29.0}}, true},
		{map[string]any{"age": map[string]any{"$lt": 29.0}}, false},
		{map[string]any{"age": map[string]any{"$ne": 31.0}}, true},
		{map[string]any{"age": map[string]any{"$gte": 30.0}}, true},
		{map[string]any{"age": map[string]any{"$lte": 29.0}}, false},
		{map[string]any{"name": map[string]any{"$in": []any{"alice", "bob"}}}, true},
		{map[string]any{"name": map[string]any{"$in": []any{"carol"}}}, false},
		{map[string]any{"name": map[string]any{"$regex": "al.*"}}, false}, // unsupported operator never matches
	}
	for i, tc := range cases {
		if got := doc.Matches(tc.filter); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestCompareMixedTypes(t *testing.T) {
	if Compare(1, 2.5) >= 0 {
		t.Fatalf("numeric cross-type compare broken")
	}
	if Compare("a", "b") >= 0 {
		t.Fatalf("string compare broken")
	}
	if Compare(false, true) >= 0 {
		t.Fatalf("bool compare broken")
	}
	if Compare(true, true) != 0 {
		t.Fatalf("bool equality broken")
	}
}
