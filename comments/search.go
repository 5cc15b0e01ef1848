package comments

import "sort"

// collectKey walks an unmarshalled JSON tree and returns every value stored
// under key, at any depth. The walk uses an explicit stack, so arbitrarily
// deep responses cannot overflow the goroutine stack. A matched value is
// collected and not descended into, so a nested occurrence of the same key
// inside a match is invisible. Map keys are visited in sorted order to keep
// the result order deterministic.
func collectKey(root any, key string) []any {
	var found []any
	stack := []any{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := node.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k == key {
					found = append(found, v[k])
				} else {
					stack = append(stack, v[k])
				}
			}
		case []any:
			stack = append(stack, v...)
		}
	}
	return found
}

// firstKey returns the first value found under key, using the same traversal
// as collectKey. The second return reports whether a match was found.
func firstKey(root any, key string) (any, bool) {
	stack := []any{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := node.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k == key {
					return v[k], true
				}
				stack = append(stack, v[k])
			}
		case []any:
			stack = append(stack, v...)
		}
	}
	return nil, false
}

// asMap returns v as a JSON object, or nil when it is anything else.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asSlice returns v as a JSON array, or nil when it is anything else.
func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// strAt returns the string stored under key in m, or "" when absent or not
// a string.
func strAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
