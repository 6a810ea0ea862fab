// Package keypath provides pure functions for dot-path access to nested
// configuration maps. All functions are pure (no I/O, no side effects on
// inputs unless documented) and form part of the functional core.
package keypath

import "strings"

// =============================================================================
// Path Resolution
// =============================================================================

// Split splits a dot-path into its segments.
// "database.host" becomes ["database", "host"].
func Split(path string) []string {
	return strings.Split(path, ".")
}

// Get resolves a dot-path against a nested map.
// Returns the value and true if every segment resolved, or nil and false
// if any intermediate segment is absent or is not a map.
func Get(tree map[string]any, path string) (any, bool) {
	segments := Split(path)

	var current any = tree
	for _, seg := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes a value at a dot-path, creating intermediate map nodes as
// needed. An intermediate node that exists but is not a map is replaced
// with a fresh map; the old scalar is discarded.
func Set(tree map[string]any, path string, value any) {
	segments := Split(path)

	node := tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

// Delete removes the value at a dot-path. Returns true when something was
// removed. Empty intermediate maps are left in place.
func Delete(tree map[string]any, path string) bool {
	segments := Split(path)

	node := tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	last := segments[len(segments)-1]
	if _, ok := node[last]; !ok {
		return false
	}
	delete(node, last)
	return true
}

// =============================================================================
// Merge & Copy
// =============================================================================

// Merge deep-merges src into dst and returns dst. On conflicting keys src
// wins, except when both sides are maps, which are merged recursively.
// dst is mutated; src is not.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, value := range src {
		if existing, ok := dst[key].(map[string]any); ok {
			if incoming, ok := value.(map[string]any); ok {
				dst[key] = Merge(existing, incoming)
				continue
			}
		}
		dst[key] = copyValue(value)
	}
	return dst
}

// DeepCopy returns a deep copy of a nested configuration map. Nested maps
// and slices are copied; scalar leaves are shared (they are immutable for
// configuration purposes).
func DeepCopy(tree map[string]any) map[string]any {
	if tree == nil {
		return nil
	}
	out := make(map[string]any, len(tree))
	for key, value := range tree {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return DeepCopy(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	default:
		return value
	}
}
