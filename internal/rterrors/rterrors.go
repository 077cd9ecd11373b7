// Package rterrors defines the error kinds the runtime returns, and the
// uniform structured shape (§7 of SPEC_FULL.md) both the in-process and
// JSON-RPC surfaces use to report them.
package rterrors

import "fmt"

// Kind identifies one of the runtime's defined error categories.
type Kind string

const (
	KindValidation   Kind = "ValidationError"
	KindToolNotFound Kind = "ToolNotFound"
	KindToolInit     Kind = "ToolInitError"
	KindToolRuntime  Kind = "ToolRuntimeError"
	KindTimeout      Kind = "TimeoutError"
	KindCache        Kind = "CacheError"
	KindProtocol     Kind = "ProtocolError"
)

// Error is the runtime's uniform error shape. It carries enough structure
// for both in-process callers and the RPC surface's error.data field.
type Error struct {
	Kind      Kind
	Message   string
	Field     string   // ValidationError only
	Expected  string   // ValidationError only
	Got       string   // ValidationError only
	NextSteps []string // actionable hints, ValidationError/ToolNotFound
	Status    int      // ToolRuntimeError HTTP-style status, if any
	cause     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Data returns the structured payload for error.data in the RPC surface, or
// the equivalent in-process error_details map.
func (e *Error) Data() map[string]any {
	data := map[string]any{
		"type": string(e.Kind),
	}
	if len(e.NextSteps) > 0 {
		data["next_steps"] = e.NextSteps
	}
	details := map[string]any{}
	if e.Field != "" {
		details["field"] = e.Field
	}
	if e.Expected != "" {
		details["expected"] = e.Expected
	}
	if e.Got != "" {
		details["got"] = e.Got
	}
	if e.Status != 0 {
		details["status"] = e.Status
	}
	if len(details) > 0 {
		data["details"] = details
	}
	return data
}

// Validation builds a ValidationError for a single field mismatch.
func Validation(field, expected, got string, nextSteps ...string) *Error {
	return &Error{
		Kind:      KindValidation,
		Message:   fmt.Sprintf("field %q: expected %s, got %s", field, expected, got),
		Field:     field,
		Expected:  expected,
		Got:       got,
		NextSteps: nextSteps,
	}
}

// ToolNotFound builds a ToolNotFound error for an unregistered name.
func ToolNotFound(name string) *Error {
	return &Error{
		Kind:      KindToolNotFound,
		Message:   fmt.Sprintf("no tool registered with name %q", name),
		NextSteps: []string{"call tools/list to see registered tool names"},
	}
}

// ToolInit wraps a factory construction failure.
func ToolInit(name string, cause error) *Error {
	return &Error{Kind: KindToolInit, Message: fmt.Sprintf("failed to initialize tool %q: %v", name, cause), cause: cause}
}

// ToolRuntime wraps an execute() failure.
func ToolRuntime(name string, status int, cause error) *Error {
	msg := cause.Error()
	const maxLen = 2000
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "...(truncated)"
	}
	return &Error{Kind: KindToolRuntime, Message: fmt.Sprintf("tool %q failed: %s", name, msg), Status: status, cause: cause}
}

// Timeout builds a TimeoutError.
func Timeout(name string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("tool %q timed out", name), cause: cause}
}

// Cache builds a CacheError. Callers must log-and-degrade, never propagate
// this to the caller (§4.3 failure semantics).
func Cache(op string, cause error) *Error {
	return &Error{Kind: KindCache, Message: fmt.Sprintf("cache %s failed: %v", op, cause), cause: cause}
}

// Protocol builds a ProtocolError for malformed JSON-RPC frames.
func Protocol(message string) *Error {
	return &Error{Kind: KindProtocol, Message: message}
}
