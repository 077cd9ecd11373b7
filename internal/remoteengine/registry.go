package remoteengine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/voocel/toolrt/internal/obslog"
)

// Registry tracks engines by key, one instance per key, matching
// vllm_proxy.py's EngineRegistry: register_engine rejects a duplicate key
// outright rather than replacing the running engine.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	log     *obslog.Logger
}

// New builds an empty Registry.
func New(log *obslog.Logger) *Registry {
	if log == nil {
		log = obslog.Nop()
	}
	return &Registry{engines: make(map[string]Engine), log: log}
}

// RegisterEngine adds engine under key. It is an error to register a
// second engine under a key that is already in use; callers that want to
// replace an engine must restart the process, per the original's "engine
// startup happens synchronously, never as a forked daemon child" model.
func (r *Registry) RegisterEngine(key string, engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[key]; exists {
		return fmt.Errorf("remoteengine: an engine with key %q is already registered", key)
	}
	r.engines[key] = engine
	r.log.Info("remoteengine: registered engine", "key", key)
	return nil
}

// GetEngine returns the engine registered under key, or false if none is.
func (r *Registry) GetEngine(key string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[key]
	if !ok {
		r.log.Warn("remoteengine: requested engine is not registered", "key", key)
	}
	return engine, ok
}

// ListKeys returns every registered engine key, sorted.
func (r *Registry) ListKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.engines))
	for k := range r.engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
