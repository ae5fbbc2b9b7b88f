// Package payload models request bodies as a generic JSON-shaped value and
// implements the patch-over-template composition used by the test execution
// engine: a suite carries a canonical base payload, and each case supplies
// only the fragment it wants to vary.
package payload

// Value is a JSON-shaped structured value: one of map[string]any, []any,
// string, float64, bool or nil, as produced by encoding/json and yaml.v3
// when decoding into an untyped target.
type Value = any

// IsEmpty reports whether v carries no fields to merge: nil, or an object
// with zero keys. Arrays and scalars are never empty, even zero-length
// arrays, since they replace the base outright.
func IsEmpty(v Value) bool {
	if v == nil {
		return true
	}
	if obj, ok := v.(map[string]any); ok {
		return len(obj) == 0
	}
	return false
}

// Compose merges an override onto a base payload.
//
// An empty override returns the base verbatim. When both sides are present
// the result is a deep merge of the override onto a clone of the base:
// object keys merge recursively, arrays on the override side replace the
// base array wholesale, and an explicit null in the override overwrites the
// base value. When the base is absent the override is returned verbatim.
// Inputs are never mutated.
func Compose(base, override Value) Value {
	if IsEmpty(override) {
		return base
	}
	if base == nil {
		return override
	}

	baseObj, baseIsObj := base.(map[string]any)
	overObj, overIsObj := override.(map[string]any)
	if !baseIsObj || !overIsObj {
		// Mismatched or scalar shapes: override wins.
		return override
	}

	merged := make(map[string]any, len(baseObj)+len(overObj))
	for k, v := range baseObj {
		merged[k] = Clone(v)
	}
	for k, v := range overObj {
		existing, ok := merged[k]
		if !ok {
			merged[k] = Clone(v)
			continue
		}
		switch ov := v.(type) {
		case map[string]any:
			merged[k] = Compose(existing, ov)
		default:
			// Arrays replace, scalars replace, nulls overwrite.
			merged[k] = Clone(v)
		}
	}
	return merged
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}
