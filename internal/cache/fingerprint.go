// Package cache provides the per-request decision cache and the
// $feature_flag_called suppression cache, both bounded in-memory maps
// protected by a mutex, the same shape as the teacher's
// internal/store.MemoryStore.
package cache

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Group is the cache's view of one group a subject belongs to: its key
// plus its properties. Defined locally (rather than imported from the
// root package) to avoid an import cycle between the root façade and
// this package.
type Group struct {
	Key        string
	Properties map[string]any
}

// Fingerprint canonicalizes (distinctId, personProperties, groups) into
// a stable uint64 key. Maps are key-sorted recursively so that
// reordering keys never changes the fingerprint, and an empty map
// fingerprints identically to a nil one. Per spec 4.I/§4.G's fingerprint
// canonicality invariant, a group contributes both its key and its
// properties: two Subject Contexts that share a group key but differ in
// that group's properties must never collide on the same fingerprint.
func Fingerprint(distinctID string, personProperties map[string]any, groups map[string]Group) uint64 {
	h := xxhash.New()
	h.WriteString(distinctID)
	h.Write([]byte{0})
	h.Write(canonicalize(personProperties))
	h.Write([]byte{0})
	h.Write(canonicalizeGroups(groups))
	return h.Sum64()
}

// canonicalize renders v (maps, slices, scalars) as JSON with map keys
// sorted at every level, so structurally identical-but-reordered inputs
// produce byte-identical output.
func canonicalize(v any) []byte {
	out, _ := json.Marshal(sortedValue(v))
	return out
}

func canonicalizeGroups(groups map[string]Group) []byte {
	if len(groups) == 0 {
		return []byte("{}")
	}
	groupTypes := make([]string, 0, len(groups))
	for groupType := range groups {
		groupTypes = append(groupTypes, groupType)
	}
	sort.Strings(groupTypes)

	out := make(map[string]json.RawMessage, len(groups))
	for _, groupType := range groupTypes {
		g := groups[groupType]
		out[groupType] = json.RawMessage(canonicalize(map[string]any{
			"key":        g.Key,
			"properties": g.Properties,
		}))
	}
	b, _ := json.Marshal(out)
	return b
}

// sortedValue recursively rewrites maps into a form whose JSON encoding
// is key-ordered by construction (Go's json.Marshal already sorts
// map[string]any keys lexicographically, but nested values need the
// same treatment applied explicitly for clarity and to normalize nil vs
// empty).
func sortedValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return map[string]any{}
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sortedValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sortedValue(val)
		}
		return out
	default:
		return t
	}
}
