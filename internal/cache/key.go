package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Key derives a stable cache key from a tool name, its cache version, and
// its call arguments. Arguments are canonicalized first — nested maps sort
// their keys and null values are dropped — so two semantically identical
// calls that merely differ in key order or an explicit-null vs. absent
// field produce the same key. This follows the teacher's hashSecret
// approach of hashing a normalized representation rather than raw input.
func Key(namespace, version string, args map[string]any) string {
	canonical := canonicalize(args)
	buf, _ := json.Marshal(canonical)

	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize recursively rebuilds map[string]any values with sorted keys
// and null entries dropped, walks []any elements, and leaves every other
// value as-is (a map[any]any is not walked); json.Marshal already sorts
// map[string]any keys, but we do it explicitly so intent is clear.
func canonicalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(v))
		for _, k := range keys {
			if v[k] == nil {
				continue
			}
			out[k] = canonicalize(v[k])
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = canonicalize(elem)
		}
		return out
	default:
		return v
	}
}
