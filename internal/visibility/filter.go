package visibility

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Filter is a document-store predicate in the MongoDB query dialect the
// results store speaks: top-level keys are ANDed, operator documents use
// $gte, $lt, $ne, $elemMatch, $eq and $or.
type Filter map[string]any

// Field names of the result documents this package filters on.
const (
	FieldStartDate = "start_date"
	FieldOwner     = "owner"
	FieldShared    = "shared"
	FieldStatus    = "status"

	StatusPrivate = "private"
)

const (
	opGte       = "$gte"
	opLt        = "$lt"
	opNe        = "$ne"
	opEq        = "$eq"
	opOr        = "$or"
	opElemMatch = "$elemMatch"
)

// Merge returns a new filter holding base's clauses overlaid by f's.
// Clauses from f win on key collisions; neither input is modified.
func (f Filter) Merge(base Filter) Filter {
	out := make(Filter, len(base)+len(f))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Equal reports structural equality.
func (f Filter) Equal(other Filter) bool {
	return reflect.DeepEqual(f, other)
}

// String renders the filter with sorted keys, for logs.
func (f Filter) String() string {
	return render(map[string]any(f))
}

func render(v any) string {
	switch t := v.(type) {
	case Filter:
		return render(map[string]any(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%q:%s", k, render(t[k])))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, render(e))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Matches evaluates the filter against a document. It implements the
// subset of query semantics the builder emits, so in-memory stores and
// tests can apply a predicate exactly as the database would.
func (f Filter) Matches(doc map[string]any) bool {
	for key, cond := range f {
		if key == opOr {
			if !matchOr(cond, doc) {
				return false
			}
			continue
		}
		if !matchField(doc[key], cond) {
			return false
		}
	}
	return true
}

func matchOr(cond any, doc map[string]any) bool {
	clauses, ok := cond.([]any)
	if !ok {
		return false
	}
	for _, c := range clauses {
		if sub, ok := asFilter(c); ok && sub.Matches(doc) {
			return true
		}
	}
	return false
}

func matchField(value, cond any) bool {
	ops, ok := asFilter(cond)
	if !ok {
		return equalValue(value, cond)
	}
	for op, arg := range ops {
		switch op {
		case opEq:
			if !equalValue(value, arg) {
				return false
			}
		case opNe:
			if equalValue(value, arg) {
				return false
			}
		case opGte, opLt:
			s, ok1 := value.(string)
			bound, ok2 := arg.(string)
			if !ok1 || !ok2 {
				return false
			}
			if op == opGte && s < bound || op == opLt && s >= bound {
				return false
			}
		case opElemMatch:
			elems, ok := asArray(value)
			if !ok {
				return false
			}
			if !anyElemMatches(elems, arg) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func anyElemMatches(elems []any, cond any) bool {
	for _, e := range elems {
		if matchField(e, cond) {
			return true
		}
	}
	return false
}

// equalValue follows the query language's array rule: a scalar
// condition matches an array field containing it.
func equalValue(value, want any) bool {
	if elems, ok := asArray(value); ok {
		for _, e := range elems {
			if e == want {
				return true
			}
		}
		return false
	}
	return value == want
}

// asArray accepts both typed string slices and decoded JSON arrays.
func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func asFilter(v any) (Filter, bool) {
	switch t := v.(type) {
	case Filter:
		return t, true
	case map[string]any:
		return Filter(t), true
	default:
		return nil, false
	}
}
