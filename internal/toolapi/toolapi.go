// Package toolapi defines the data model shared by the registry, validator,
// cache, dispatcher, and hook packages: tool specs, parameter schemas,
// execution contexts, and the capability interfaces a ToolInstance may
// optionally implement.
package toolapi

import (
	"context"
	"time"
)

// ParameterSchema is a JSON-schema-like description of a tool's arguments.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single argument.
type PropertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Default     any             `json:"default,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
}

// Result is the serializable outcome of a tool execution.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Spec is the immutable, once-loaded description of a tool: name, factory
// key, parameter schema, and the caching/concurrency policy the dispatcher
// applies to calls against it.
type Spec struct {
	Name        string
	Type        string
	Description string
	Parameter   ParameterSchema

	Cacheable           bool
	CacheTTLSeconds     int
	CacheVersion        string
	BatchMaxConcurrency int // 0 means unbounded
	Timeout             time.Duration
	Tags                []string
	Category            string

	// DefaultUseCache and DefaultValidate override the universal per-call
	// defaults for this tool specifically, when a FunctionCall doesn't
	// supply its own override. nil means "no tool-level opinion" — fall
	// through to the universal default (true for validate, Cacheable for
	// use_cache) — so existing Spec literals that don't set these fields
	// keep their current behavior.
	DefaultUseCache *bool
	DefaultValidate *bool

	// Capabilities is populated by the registry at Register time (when the
	// Type's factory is already registered), on the first Instance call, and
	// on Refresh, by type-asserting the constructed instance against the
	// optional StreamingTool/CacheAware/ValidationAware interfaces below.
	Capabilities Capabilities
}

// Capabilities records which optional interfaces a ToolInstance implements,
// decided once at registration time rather than re-derived on every call.
type Capabilities struct {
	Streaming  bool
	CacheAware bool
	Validation bool
}

// FunctionCall is a single named invocation with its argument map.
type FunctionCall struct {
	Name        string
	Arguments   map[string]any
	DedupOptOut bool // when true, never coalesced with identical batch siblings

	// UseCache and Validate override the tool's default for this call only;
	// nil means "no call-level opinion" — fall through to the Spec's
	// DefaultUseCache/DefaultValidate, then the universal default.
	UseCache *bool
	Validate *bool

	// Stream, when non-nil, receives progressive output from a tool that
	// implements StreamingTool; ignored otherwise.
	Stream StreamCallback

	// Lenient requests coercion of loosely-typed arguments (e.g. numeric
	// strings) during validation. Only the RPC surface should set this —
	// in-process callers already pass correctly-typed Go values and should
	// get strict validation.
	Lenient bool
}

// StreamCallback receives progressive output from a StreamingTool.
type StreamCallback func(chunk any)

// Instance is the minimal contract every tool implementation must satisfy.
type Instance interface {
	Execute(ctx context.Context, arguments map[string]any) (*Result, error)
}

// StreamingTool is implemented by tools that can emit progressive output.
type StreamingTool interface {
	Instance
	ExecuteStreaming(ctx context.Context, arguments map[string]any, stream StreamCallback) (*Result, error)
}

// CacheAware is implemented by tools that want to know the dispatcher's
// caching decision for this call (e.g. to skip redundant internal work).
type CacheAware interface {
	Instance
	SetUseCache(bool)
}

// ValidationAware is implemented by tools that want to know whether the
// dispatcher already validated the arguments, so they can skip re-checking.
type ValidationAware interface {
	Instance
	SetValidated(bool)
}

// Factory constructs a ToolInstance from its Spec. Factories are registered
// once per Type and invoked at Register when the Type's factory is already
// registered, otherwise on the tool's first Instance call.
type Factory func(spec *Spec) (Instance, error)

// ExecutionContext carries per-call metadata through validation, caching,
// execution, and the hook chain. It is the Go-native replacement (per the
// source's nested options dict) for ambient execution configuration.
type ExecutionContext struct {
	Context   context.Context
	ToolName  string
	CallID    string
	SessionID string
	Arguments map[string]any
	UseCache  bool
	Validate  bool
	Stream    StreamCallback
	StartedAt time.Time
	Attempt   int
	Metadata  map[string]any
}
