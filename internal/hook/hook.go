// Package hook implements the runtime's pre/post execution hook chain.
// The registry shape — hooks keyed by tool name or the "*" wildcard — is
// grounded directly on the teacher's pkg/tool/hooks.go HookRegistry. Hooks
// run in ascending Priority order, wildcard and tool-specific hooks
// interleaved (a wildcard hook runs first only on equal priority), and are
// fail-open: a hook's own error never reaches the
// caller, the untransformed result is returned instead and the failure is
// only logged and counted.
package hook

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/toolapi"
)

// Decision describes how a pre-hook wants to adjust a call before it runs.
type Decision struct {
	Abort        bool
	AbortResult  *toolapi.Result
	ModifiedArgs map[string]any
}

// PreFunc runs before a tool executes and may short-circuit it.
type PreFunc func(ctx context.Context, ec *toolapi.ExecutionContext) Decision

// PostFunc runs after a tool executes and may transform its result.
type PostFunc func(ctx context.Context, ec *toolapi.ExecutionContext, result *toolapi.Result, callErr error) (*toolapi.Result, error)

// Condition gates whether a post-hook applies to a given result, mirroring
// the output_length/tool_name conditions SPEC_FULL.md's hook config names.
type Condition func(ec *toolapi.ExecutionContext, result *toolapi.Result) bool

type preEntry struct {
	name     string
	priority int
	fn       PreFunc
}

type postEntry struct {
	name      string
	priority  int
	fn        PostFunc
	condition Condition
}

// Registry stores pre/post hooks per tool name, the same "*" plus
// tool-specific keying the teacher's HookRegistry uses.
type Registry struct {
	mu   sync.RWMutex
	pre  map[string][]preEntry
	post map[string][]postEntry
	log  *obslog.Logger
}

// New returns an empty hook registry.
func New(log *obslog.Logger) *Registry {
	if log == nil {
		log = obslog.Nop()
	}
	return &Registry{
		pre:  map[string][]preEntry{},
		post: map[string][]postEntry{},
		log:  log,
	}
}

func normalize(toolName string) string {
	name := strings.TrimSpace(toolName)
	if name == "" {
		return "*"
	}
	return name
}

// RegisterPre registers a pre-hook for toolName (or "*" for every tool).
// Lower priority values run first.
func (r *Registry) RegisterPre(toolName, name string, priority int, fn PreFunc) {
	if fn == nil {
		return
	}
	key := normalize(toolName)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pre[key] = append(r.pre[key], preEntry{name: name, priority: priority, fn: fn})
}

// RegisterPost registers a post-hook for toolName (or "*"). If condition is
// non-nil the hook only runs when it returns true for the call's result.
func (r *Registry) RegisterPost(toolName, name string, priority int, condition Condition, fn PostFunc) {
	if fn == nil {
		return
	}
	key := normalize(toolName)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.post[key] = append(r.post[key], postEntry{name: name, priority: priority, fn: fn, condition: condition})
}

// preChain returns this tool's pre-hooks merged with "*", in ascending
// priority order ("*" and tool-specific entries are interleaved by
// priority, not "*" always first — priority is the one ordering rule).
func (r *Registry) preChain(toolName string) []preEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	merged := append([]preEntry(nil), r.pre["*"]...)
	if toolName != "" {
		merged = append(merged, r.pre[toolName]...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].priority < merged[j].priority })
	return merged
}

func (r *Registry) postChain(toolName string) []postEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	merged := append([]postEntry(nil), r.post["*"]...)
	if toolName != "" {
		merged = append(merged, r.post[toolName]...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].priority < merged[j].priority })
	return merged
}

// RunPre runs the pre-hook chain for ec.ToolName. It returns the (possibly
// aborting) Decision of the first hook that chooses to abort, or a
// non-aborting Decision once every hook has run.
func (r *Registry) RunPre(ctx context.Context, ec *toolapi.ExecutionContext) Decision {
	for _, entry := range r.preChain(ec.ToolName) {
		d := entry.fn(ctx, ec)
		if d.Abort {
			return d
		}
		if d.ModifiedArgs != nil {
			ec.Arguments = d.ModifiedArgs
		}
	}
	return Decision{}
}

// RunPost runs the post-hook chain for ec.ToolName. Each hook that errors
// is skipped (fail-open): the result from before that hook is carried
// forward unchanged, and the failure is logged and swallowed rather than
// propagated to the caller.
func (r *Registry) RunPost(ctx context.Context, ec *toolapi.ExecutionContext, result *toolapi.Result, callErr error) (*toolapi.Result, error) {
	for _, entry := range r.postChain(ec.ToolName) {
		if entry.condition != nil && !entry.condition(ec, result) {
			continue
		}
		next, err := entry.fn(ctx, ec, result, callErr)
		if err != nil {
			r.log.WithTool(ec.ToolName, ec.CallID).Error("hook failed, falling back to prior output",
				"hook", entry.name, "error", err)
			obslog.HookFailuresOpen.WithLabelValues(entry.name).Inc()
			continue
		}
		result = next
	}
	return result, callErr
}

// OutputLengthAtLeast builds a Condition matching results whose string
// Data[field] is at least n characters long — the Go counterpart to the
// source's chunk_size gate in output_summarizer.py.
func OutputLengthAtLeast(field string, n int) Condition {
	return func(ec *toolapi.ExecutionContext, result *toolapi.Result) bool {
		if result == nil || result.Data == nil {
			return false
		}
		s, _ := result.Data[field].(string)
		return len(s) >= n
	}
}

// ToolNameIn builds a Condition matching only the named tools.
func ToolNameIn(names ...string) Condition {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(ec *toolapi.ExecutionContext, result *toolapi.Result) bool {
		_, ok := set[ec.ToolName]
		return ok
	}
}
