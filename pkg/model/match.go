package model

import (
	"fmt"
	"strings"
)

// Matches evaluates a field->predicate filter against a document. A
// predicate is either a literal (equality) or an operator map with
// $eq/$ne/$gt/$gte/$lt/$lte/$in. Both the client query executor and the
// server live multiplexer filter with these exact semantics, so a live
// subscription and a replica query never disagree on membership.
func (d Document) Matches(filter map[string]any) bool {
	for field, pred := range filter {
		value := d[field]
		ops, isOps := pred.(map[string]any)
		if !isOps {
			if Compare(value, pred) != 0 {
				return false
			}
			continue
		}
		for op, arg := range ops {
			if !evalOp(op, value, arg) {
				return false
			}
		}
	}
	return true
}

func evalOp(op string, value, arg any) bool {
	switch op {
	case "$eq":
		return Compare(value, arg) == 0
	case "$ne":
		return Compare(value, arg) != 0
	case "$gt":
		return Compare(value, arg) > 0
	case "$gte":
		return Compare(value, arg) >= 0
	case "$lt":
		return Compare(value, arg) < 0
	case "$lte":
		return Compare(value, arg) <= 0
	case "$in":
		list, ok := arg.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if Compare(value, item) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Compare orders two loosely typed values. Mixed or unsupported types
// order by their string form, which keeps sorts stable.
func Compare(a, b any) int {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs)
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
