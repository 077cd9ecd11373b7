// Package dispatcher executes tool calls — singly or in batches — against
// the registry, cache, validator, and hook chain. Per-tool concurrency caps
// are enforced with buffered-channel semaphores in the style of the
// teacher's middleware_limit.go/middleware_timeout.go wrapping pattern,
// and the batch-wide worker pool is bounded with
// golang.org/x/sync/errgroup.SetLimit, grounded on the errgroup.WithContext
// usage in pkg/ralph/orchestrator.go.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voocel/toolrt/internal/cache"
	"github.com/voocel/toolrt/internal/hook"
	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/registry"
	"github.com/voocel/toolrt/internal/rterrors"
	"github.com/voocel/toolrt/internal/toolapi"
	"github.com/voocel/toolrt/internal/validator"
)

// Message is one entry in a batch's resulting conversation-shaped output: a
// synthetic "assistant" envelope first, then one "tool" message per call in
// submission order.
type Message struct {
	Role       string          `json:"role"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Content    *toolapi.Result `json:"content,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Dispatcher wires the registry, cache, validator, and hook chain into the
// call path, applying caching, validation, and per-tool concurrency limits
// consistently for both single calls and batches.
type Dispatcher struct {
	registry  *registry.Registry
	cache     *cache.Engine
	hooks     *hook.Registry
	validator *validator.Validator
	log       *obslog.Logger

	globalWorkers int

	semMu sync.Mutex
	sems  map[string]chan struct{}
}

// Options configures a new Dispatcher.
type Options struct {
	Registry      *registry.Registry
	Cache         *cache.Engine
	Hooks         *hook.Registry
	Validator     *validator.Validator
	Logger        *obslog.Logger
	GlobalWorkers int // 0 defaults to 16
}

// New builds a Dispatcher.
func New(opts Options) *Dispatcher {
	workers := opts.GlobalWorkers
	if workers <= 0 {
		workers = 16
	}
	log := opts.Logger
	if log == nil {
		log = obslog.Nop()
	}
	v := opts.Validator
	if v == nil {
		v = validator.New()
	}
	return &Dispatcher{
		registry:      opts.Registry,
		cache:         opts.Cache,
		hooks:         opts.Hooks,
		validator:     v,
		log:           log,
		globalWorkers: workers,
		sems:          map[string]chan struct{}{},
	}
}

// semFor returns the per-tool semaphore for name, creating it lazily from
// the tool's BatchMaxConcurrency (0 means unbounded: no semaphore).
func (d *Dispatcher) semFor(spec *toolapi.Spec) chan struct{} {
	if spec.BatchMaxConcurrency <= 0 {
		return nil
	}
	d.semMu.Lock()
	defer d.semMu.Unlock()
	sem, ok := d.sems[spec.Name]
	if !ok {
		sem = make(chan struct{}, spec.BatchMaxConcurrency)
		d.sems[spec.Name] = sem
	}
	return sem
}

// effectiveBool resolves a tri-state override chain: the call's own
// override wins if set, then the tool's spec-level default, then fallback.
func effectiveBool(call *bool, spec *bool, fallback bool) bool {
	if call != nil {
		return *call
	}
	if spec != nil {
		return *spec
	}
	return fallback
}

// RunOne executes a single FunctionCall end-to-end: validation, cache
// lookup, the pre-hook chain, execution (respecting the tool's per-tool
// concurrency cap and timeout), and the post-hook chain. use_cache and
// validate each resolve through call override -> spec default -> universal
// default (true for validate, the tool's Cacheable flag for use_cache).
func (d *Dispatcher) RunOne(ctx context.Context, call toolapi.FunctionCall) (*toolapi.Result, error) {
	spec, ok := d.registry.Spec(call.Name)
	if !ok {
		return nil, rterrors.ToolNotFound(call.Name)
	}

	validate := effectiveBool(call.Validate, spec.DefaultValidate, true)
	useCache := spec.Cacheable && effectiveBool(call.UseCache, spec.DefaultUseCache, spec.Cacheable)

	ec := &toolapi.ExecutionContext{
		Context:   ctx,
		ToolName:  call.Name,
		Arguments: call.Arguments,
		UseCache:  useCache,
		Validate:  validate,
		Stream:    call.Stream,
		StartedAt: time.Now(),
	}

	if ec.Validate {
		if err := d.validator.ValidateWithMode(spec.Parameter, ec.Arguments, call.Lenient); err != nil {
			return nil, err
		}
	}

	if d.hooks != nil {
		decision := d.hooks.RunPre(ctx, ec)
		if decision.Abort {
			return decision.AbortResult, nil
		}
	}

	result, err := d.execute(ec, spec)

	if d.hooks != nil {
		result, err = d.hooks.RunPost(ctx, ec, result, err)
	}

	return result, err
}

func (d *Dispatcher) execute(ec *toolapi.ExecutionContext, spec *toolapi.Spec) (*toolapi.Result, error) {
	sem := d.semFor(spec)
	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ec.Context.Done():
			return nil, rterrors.Timeout(spec.Name, ec.Context.Err())
		}
	}

	runCtx := ec.Context
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, spec.Timeout)
		defer cancel()
	}

	instance, err := d.registry.Instance(spec.Name)
	if err != nil {
		return nil, rterrors.ToolInit(spec.Name, err)
	}

	// Forward the resolved use_cache/validate decisions to instances that
	// asked to know them, per the capabilities the registry detected at
	// registration time.
	if spec.Capabilities.CacheAware {
		if aware, ok := instance.(toolapi.CacheAware); ok {
			aware.SetUseCache(ec.UseCache)
		}
	}
	if spec.Capabilities.Validation {
		if aware, ok := instance.(toolapi.ValidationAware); ok {
			aware.SetValidated(ec.Validate)
		}
	}

	compute := func() (*toolapi.Result, error) {
		var result *toolapi.Result
		var err error
		if ec.Stream != nil && spec.Capabilities.Streaming {
			streamer, ok := instance.(toolapi.StreamingTool)
			if !ok {
				return nil, rterrors.ToolInit(spec.Name, fmt.Errorf("capabilities report streaming support but instance does not implement StreamingTool"))
			}
			result, err = streamer.ExecuteStreaming(runCtx, ec.Arguments, ec.Stream)
		} else {
			result, err = instance.Execute(runCtx, ec.Arguments)
		}
		if err != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, rterrors.Timeout(spec.Name, err)
			}
			return nil, rterrors.ToolRuntime(spec.Name, 0, err)
		}
		return result, nil
	}

	if !ec.UseCache || d.cache == nil {
		return compute()
	}

	key := cache.Key(spec.Name, spec.CacheVersion, ec.Arguments)
	ttl := time.Duration(spec.CacheTTLSeconds) * time.Second
	return d.cache.GetOrCompute(ec.Context, spec.Name, key, spec.CacheVersion, ttl, compute)
}

// RunBatch executes every call concurrently, respecting each tool's
// per-tool concurrency cap and an overall worker pool bounded to
// d.globalWorkers (or maxWorkers, if one positive override is passed), and
// returns one Message per call in submission order preceded by a synthetic
// "assistant" envelope message, matching the batch shape SPEC_FULL §4.4
// describes for tool-call conversation turns.
//
// Duplicate calls (identical name and canonicalized arguments, and not
// DedupOptOut) coalesce to a single execution: only the canonical index
// runs inside the errgroup, and duplicate indices are filled from the
// canonical's result strictly after group.Wait() returns, so no goroutine
// ever reads a sibling's result slot while it's still being written.
func (d *Dispatcher) RunBatch(ctx context.Context, calls []toolapi.FunctionCall, maxWorkers ...int) ([]Message, error) {
	workers := d.globalWorkers
	if len(maxWorkers) > 0 && maxWorkers[0] > 0 {
		workers = maxWorkers[0]
	}

	results := make([]*toolapi.Result, len(calls))
	errs := make([]error, len(calls))

	dedup := d.dedupIndex(calls)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, call := range calls {
		if _, isCopy := dedup[i]; isCopy {
			continue
		}
		i, call := i, call
		group.Go(func() error {
			result, err := d.RunOne(gctx, call)
			results[i] = result
			errs[i] = err
			return nil
		})
	}
	_ = group.Wait()

	for i, canonical := range dedup {
		results[i], errs[i] = results[canonical], errs[canonical]
	}

	out := make([]Message, 0, len(calls)+1)
	out = append(out, Message{Role: "assistant"})
	for i, call := range calls {
		msg := Message{Role: "tool", ToolName: call.Name, Content: results[i]}
		if errs[i] != nil {
			msg.Error = errs[i].Error()
		}
		out = append(out, msg)
	}
	return out, nil
}

// dedupIndex returns, for every call index whose (name, arguments) pair is
// an exact duplicate of an earlier call in the same batch, the index of
// that earlier call to copy its result from. Calls with DedupOptOut set
// are never coalesced. This mirrors singleflight's cross-call coalescing
// but scoped to one batch rather than concurrent callers over time.
func (d *Dispatcher) dedupIndex(calls []toolapi.FunctionCall) map[int]int {
	seen := make(map[string]int, len(calls))
	dups := make(map[int]int)
	for i, call := range calls {
		if call.DedupOptOut {
			continue
		}
		key := call.Name + "\x00" + cache.Key(call.Name, "", call.Arguments)
		if first, ok := seen[key]; ok {
			dups[i] = first
		} else {
			seen[key] = i
		}
	}
	return dups
}
