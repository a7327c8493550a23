// Package jsontree provides heuristic lookups over schemaless decoded JSON.
//
// The Yahoo Fantasy API nests the same logical field at different depths and
// under different parent shapes depending on endpoint and response instance,
// so callers search for a key anywhere in a subtree instead of addressing a
// fixed path. When a key occurs more than once the first match in traversal
// order wins; scope the search to a smaller subtree to disambiguate.
package jsontree

import "sort"

// Find returns the value of the first occurrence of key in tree. The tree is
// an arbitrary composition of map[string]any, []any and scalar leaves, as
// produced by decoding JSON into any. A direct hit on the root map wins;
// otherwise the search descends depth-first through map values in ascending
// key order, then list items, in order. Go randomizes map iteration, so
// sorting keeps the winning occurrence stable across runs when a key appears
// more than once. The second return is false when the key is absent anywhere
// in the tree.
func Find(tree any, key string) (any, bool) {
	switch typed := tree.(type) {
	case map[string]any:
		if value, ok := typed[key]; ok {
			return value, true
		}
		siblings := make([]string, 0, len(typed))
		for name := range typed {
			siblings = append(siblings, name)
		}
		sort.Strings(siblings)
		for _, name := range siblings {
			if value, ok := Find(typed[name], key); ok {
				return value, true
			}
		}
	case []any:
		for _, item := range typed {
			if value, ok := Find(item, key); ok {
				return value, true
			}
		}
	}
	return nil, false
}

// FindString is Find with a string coercion: non-string scalar hits are
// treated as absent.
func FindString(tree any, key string) (string, bool) {
	raw, ok := Find(tree, key)
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	return value, ok
}

// FindMap is Find constrained to object values.
func FindMap(tree any, key string) (map[string]any, bool) {
	raw, ok := Find(tree, key)
	if !ok {
		return nil, false
	}
	value, ok := raw.(map[string]any)
	return value, ok
}
