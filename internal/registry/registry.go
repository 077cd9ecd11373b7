// Package registry holds the catalog of tool specs and factories, and
// decides each tool's capabilities once at registration time rather than
// re-probing on every call. Structurally this mirrors the teacher's
// pkg/tool.Registry (RWMutex-guarded map, Register/Get/List/Count), adapted
// from a fixed set of built-in tools to a factory-per-type catalog.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/voocel/toolrt/internal/toolapi"
)

// Entry is one cataloged tool: its immutable spec plus the factory used to
// construct instances of its type.
type Entry struct {
	Spec    *toolapi.Spec
	Factory toolapi.Factory

	mu       sync.Mutex
	instance toolapi.Instance // lazily constructed, cached after first use
}

// Registry is the tool catalog. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	factories map[string]toolapi.Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries:   make(map[string]*Entry),
		factories: make(map[string]toolapi.Factory),
	}
}

// RegisterFactory associates a Factory with a tool Type. Specs of that Type
// registered afterward (or already registered) use it to build instances.
func (r *Registry) RegisterFactory(toolType string, factory toolapi.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[toolType] = factory
}

// Register adds a tool spec to the catalog. If a factory for spec.Type is
// already known, the tool's capabilities are probed immediately by
// constructing an instance and type-asserting it against the
// optional StreamingTool/CacheAware/ValidationAware interfaces; the
// constructed instance is then cached so this isn't repeated at call time.
func (r *Registry) Register(spec *toolapi.Spec) error {
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("registry: spec must have a non-empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.BatchMaxConcurrency < 0 {
		return fmt.Errorf("registry: tool %q has negative batch_max_concurrency %d", spec.Name, spec.BatchMaxConcurrency)
	}

	factory, ok := r.factories[spec.Type]
	entry := &Entry{Spec: spec, Factory: factory}

	if ok {
		instance, err := factory(spec)
		if err != nil {
			return fmt.Errorf("registry: constructing tool %q: %w", spec.Name, err)
		}
		spec.Capabilities = detectCapabilities(instance)
		entry.instance = instance
	}

	r.entries[spec.Name] = entry
	return nil
}

// detectCapabilities type-asserts instance against the capability interfaces
// once, at registration time — the Go-native replacement for signature
// introspection at call time.
func detectCapabilities(instance toolapi.Instance) toolapi.Capabilities {
	var caps toolapi.Capabilities
	if _, ok := instance.(toolapi.StreamingTool); ok {
		caps.Streaming = true
	}
	if _, ok := instance.(toolapi.CacheAware); ok {
		caps.CacheAware = true
	}
	if _, ok := instance.(toolapi.ValidationAware); ok {
		caps.Validation = true
	}
	return caps
}

// Spec returns the spec for name, or false if unregistered.
func (r *Registry) Spec(name string) (*toolapi.Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Spec, true
}

// Instance returns a constructed tool instance for name, building and
// caching it lazily if the factory wasn't available at Register time.
func (r *Registry) Instance(name string) (toolapi.Instance, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: no tool named %q", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance != nil {
		return e.instance, nil
	}

	r.mu.RLock()
	factory := r.factories[e.Spec.Type]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("registry: no factory registered for type %q (tool %q)", e.Spec.Type, name)
	}
	instance, err := factory(e.Spec)
	if err != nil {
		return nil, fmt.Errorf("registry: constructing tool %q: %w", name, err)
	}
	r.mu.Lock()
	e.Spec.Capabilities = detectCapabilities(instance)
	r.mu.Unlock()
	e.instance = instance
	return instance, nil
}

// Names returns the sorted names of every registered tool.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every registered spec, sorted by name.
func (r *Registry) List() []*toolapi.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]*toolapi.Spec, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ByCategory returns the sorted names of tools tagged with the given
// category; Catalog.Names falls back to it when a category has no
// manifest file.
func (r *Registry) ByCategory(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, e := range r.entries {
		if e.Spec.Category == category {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Refresh re-probes the capabilities of every already-constructed tool
// instance, diffs the registry's current specs against prior using the
// spec-hash snapshot (see Diff), and drops the cached instance for every
// tool whose spec changed since prior was captured — forcing the next
// Instance call to reconstruct it from the current spec. It returns the
// same new/changed/unchanged classification Diff does, plus the updated
// snapshot to persist for the next Refresh call.
func (r *Registry) Refresh(prior BuildMetadata) (newTools, changed, unchanged []string, next BuildMetadata) {
	newTools, changed, unchanged, next = r.Diff(prior)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range changed {
		if e, ok := r.entries[name]; ok {
			e.mu.Lock()
			e.instance = nil
			e.mu.Unlock()
		}
	}
	for _, e := range r.entries {
		if e.instance != nil {
			e.Spec.Capabilities = detectCapabilities(e.instance)
		}
	}
	return newTools, changed, unchanged, next
}

// Catalog maps a category name to the path of a JSON manifest file listing
// the tool names registered under that category, so a category's tool
// names can be enumerated without constructing a single factory — the
// lazy-catalog counterpart to the eager, in-memory ByCategory.
type Catalog map[string]string

// catalogManifest is the on-disk shape of one category's manifest file:
// a flat list of tool names, written alongside the tools themselves by
// whatever process builds the catalog.
type catalogManifest struct {
	Tools []string `json:"tools"`
}

// Names returns the tool names listed in category's manifest file, read
// fresh from disk on every call rather than from the in-memory registry, so
// a caller can discover a category's tools without paying for any of their
// factories to run. If category has no manifest path configured, or the
// manifest file doesn't exist yet, Names falls back to r.ByCategory so an
// unconfigured Catalog still works for registries built entirely by direct
// Register calls.
func (c Catalog) Names(r *Registry, category string) ([]string, error) {
	path, ok := c[category]
	if !ok {
		return r.ByCategory(category), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r.ByCategory(category), nil
		}
		return nil, fmt.Errorf("registry: reading catalog manifest %q: %w", path, err)
	}
	var manifest catalogManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("registry: parsing catalog manifest %q: %w", path, err)
	}
	names := append([]string(nil), manifest.Tools...)
	sort.Strings(names)
	return names, nil
}
