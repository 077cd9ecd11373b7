package registry

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/voocel/toolrt/internal/toolapi"
)

// specHash returns a stable hash over a spec's registration-relevant fields,
// grounded on the source's calculate_tool_hash: normalize, drop volatile
// fields, hash the canonical JSON encoding.
func specHash(spec *toolapi.Spec) string {
	normalized := map[string]any{
		"name":          spec.Name,
		"type":          spec.Type,
		"description":   spec.Description,
		"parameter":     spec.Parameter,
		"cacheable":     spec.Cacheable,
		"cache_ttl":     spec.CacheTTLSeconds,
		"cache_version": spec.CacheVersion,
		"tags":          spec.Tags,
		"category":      spec.Category,
	}
	buf, _ := json.Marshal(normalized)
	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:])
}

// BuildMetadata maps tool name to its last-observed spec hash, persisted as
// a sidecar JSON file alongside the catalog (the source's metadata_file).
type BuildMetadata map[string]string

// LoadBuildMetadata reads the sidecar file, returning an empty map if it
// doesn't exist yet.
func LoadBuildMetadata(path string) (BuildMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BuildMetadata{}, nil
		}
		return nil, err
	}
	meta := BuildMetadata{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return BuildMetadata{}, nil
	}
	return meta, nil
}

// Save writes the sidecar file, creating parent directories as needed.
func (m BuildMetadata) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Diff classifies the registry's current specs against a prior BuildMetadata
// snapshot: new tools, tools whose spec changed since last build, and tools
// that are unchanged — the Go-native equivalent of get_changed_tools.
// It also returns the updated metadata snapshot to be persisted via Save.
func (r *Registry) Diff(prior BuildMetadata) (newTools, changed, unchanged []string, next BuildMetadata) {
	specs := r.List()
	next = make(BuildMetadata, len(specs))

	for _, spec := range specs {
		hash := specHash(spec)
		next[spec.Name] = hash

		oldHash, known := prior[spec.Name]
		switch {
		case !known:
			newTools = append(newTools, spec.Name)
		case oldHash != hash:
			changed = append(changed, spec.Name)
		default:
			unchanged = append(unchanged, spec.Name)
		}
	}

	sort.Strings(newTools)
	sort.Strings(changed)
	sort.Strings(unchanged)
	return newTools, changed, unchanged, next
}
