// Package validator checks a tool call's arguments against its parameter
// schema before dispatch. The coercion rules are grounded on the teacher's
// middleware_validation.go composable-Validator pattern, generalized from a
// fixed rule list to a schema-driven check, since JSON-RPC callers only have
// strings and numbers to work with and the schema needs to meet them partway.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voocel/toolrt/internal/rterrors"
	"github.com/voocel/toolrt/internal/toolapi"
)

// Validator checks call arguments against a tool's parameter schema.
type Validator struct {
	// Lenient enables coercion of RPC-sourced strings into the schema's
	// declared type (e.g. "42" -> 42 for a number property). Disable for
	// in-process callers that already pass correctly-typed Go values.
	Lenient bool
}

// New returns a Validator with lenient coercion enabled, the default posture
// for arguments arriving over the RPC surface.
func New() *Validator {
	return &Validator{Lenient: true}
}

// ValidateWithMode is Validate with the coercion mode pinned explicitly for
// this call, overriding v.Lenient. The RPC surface passes lenient=true;
// in-process callers should pass lenient=false so a caller's own type
// mistakes surface as errors instead of being silently coerced.
func (v *Validator) ValidateWithMode(schema toolapi.ParameterSchema, args map[string]any, lenient bool) error {
	scoped := *v
	scoped.Lenient = lenient
	return scoped.Validate(schema, args)
}

// Validate checks args against schema, returning a *rterrors.Error of kind
// ValidationError on the first failure. It mutates args in place to apply
// any lenient coercion and to fill in declared defaults for missing
// optional properties.
func (v *Validator) Validate(schema toolapi.ParameterSchema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}

	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return rterrors.Validation(name, "present", "missing",
				fmt.Sprintf("provide the %q argument", name))
		}
	}

	for name, prop := range schema.Properties {
		value, present := args[name]
		if !present {
			if prop.Default != nil {
				args[name] = prop.Default
			}
			continue
		}
		coerced, err := v.checkProperty(name, prop, value)
		if err != nil {
			return err
		}
		args[name] = coerced
	}

	return nil
}

func (v *Validator) checkProperty(name string, prop toolapi.PropertySchema, value any) (any, error) {
	switch prop.Type {
	case "string":
		return v.asString(name, prop, value)
	case "number":
		return v.asNumber(name, value)
	case "integer":
		return v.asInteger(name, value)
	case "boolean":
		return v.asBool(name, value)
	case "array":
		return v.asArray(name, prop, value)
	default:
		return value, nil
	}
}

func (v *Validator) asString(name string, prop toolapi.PropertySchema, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, rterrors.Validation(name, "string", typeName(value))
	}
	if len(prop.Enum) > 0 {
		for _, allowed := range prop.Enum {
			if allowed == s {
				return s, nil
			}
		}
		return nil, rterrors.Validation(name, "one of "+strings.Join(prop.Enum, ", "), s,
			"use one of the allowed enum values")
	}
	return s, nil
}

func (v *Validator) asNumber(name string, value any) (any, error) {
	switch n := value.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		if !v.Lenient {
			return nil, rterrors.Validation(name, "number", "string")
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, rterrors.Validation(name, "number", fmt.Sprintf("unparseable string %q", n))
		}
		return parsed, nil
	default:
		return nil, rterrors.Validation(name, "number", typeName(value))
	}
}

func (v *Validator) asInteger(name string, value any) (any, error) {
	switch n := value.(type) {
	case float64:
		if n != float64(int64(n)) {
			return nil, rterrors.Validation(name, "integer", "non-integral number")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		if !v.Lenient {
			return nil, rterrors.Validation(name, "integer", "string")
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, rterrors.Validation(name, "integer", fmt.Sprintf("unparseable string %q", n))
		}
		return parsed, nil
	default:
		return nil, rterrors.Validation(name, "integer", typeName(value))
	}
}

func (v *Validator) asBool(name string, value any) (any, error) {
	switch b := value.(type) {
	case bool:
		return b, nil
	case string:
		if !v.Lenient {
			return nil, rterrors.Validation(name, "boolean", "string")
		}
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		default:
			return nil, rterrors.Validation(name, "boolean", fmt.Sprintf("unparseable string %q", b))
		}
	default:
		return nil, rterrors.Validation(name, "boolean", typeName(value))
	}
}

func (v *Validator) asArray(name string, prop toolapi.PropertySchema, value any) (any, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, rterrors.Validation(name, "array", typeName(value))
	}
	if prop.Items == nil {
		return arr, nil
	}
	out := make([]any, len(arr))
	for i, elem := range arr {
		coerced, err := v.checkProperty(fmt.Sprintf("%s[%d]", name, i), *prop.Items, elem)
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

func typeName(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}

// NonEmptyString is a small composable check in the teacher's
// ValidateNonEmpty style, for use by tool factories that need ad hoc
// argument checks beyond the schema.
func NonEmptyString(name string, args map[string]any) error {
	v, ok := args[name].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return rterrors.Validation(name, "non-empty string", typeName(args[name]))
	}
	return nil
}
