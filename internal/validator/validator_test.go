package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voocel/toolrt/internal/rterrors"
	"github.com/voocel/toolrt/internal/toolapi"
)

func schema() toolapi.ParameterSchema {
	return toolapi.ParameterSchema{
		Type:     "object",
		Required: []string{"query"},
		Properties: map[string]toolapi.PropertySchema{
			"query":     {Type: "string"},
			"limit":     {Type: "integer", Default: float64(10)},
			"strict":    {Type: "boolean"},
			"threshold": {Type: "number"},
		},
	}
}

func TestValidateMissingRequired(t *testing.T) {
	v := New()
	err := v.Validate(schema(), map[string]any{})
	require.Error(t, err)
	rtErr, ok := err.(*rterrors.Error)
	require.True(t, ok)
	assert.Equal(t, rterrors.KindValidation, rtErr.Kind)
}

func TestValidateFillsDefault(t *testing.T) {
	v := New()
	args := map[string]any{"query": "x"}
	require.NoError(t, v.Validate(schema(), args))
	assert.Equal(t, float64(10), args["limit"])
}

func TestValidateLenientCoercion(t *testing.T) {
	v := New()
	args := map[string]any{"query": "x", "limit": "5", "strict": "true", "threshold": "1.5"}
	require.NoError(t, v.Validate(schema(), args))
	assert.Equal(t, int64(5), args["limit"])
	assert.Equal(t, true, args["strict"])
	assert.Equal(t, 1.5, args["threshold"])
}

func TestValidateStrictRejectsStringCoercion(t *testing.T) {
	v := &Validator{Lenient: false}
	args := map[string]any{"query": "x", "limit": "5"}
	err := v.Validate(schema(), args)
	require.Error(t, err)
}

func TestValidateEnum(t *testing.T) {
	s := toolapi.ParameterSchema{
		Properties: map[string]toolapi.PropertySchema{
			"mode": {Type: "string", Enum: []string{"fast", "slow"}},
		},
	}
	v := New()
	require.NoError(t, v.Validate(s, map[string]any{"mode": "fast"}))
	require.Error(t, v.Validate(s, map[string]any{"mode": "medium"}))
}

func TestValidateWithModeOverridesConstructedLenient(t *testing.T) {
	lenient := New()
	args := map[string]any{"query": "x", "limit": "5"}
	err := lenient.ValidateWithMode(schema(), args, false)
	require.Error(t, err)

	strict := &Validator{Lenient: false}
	args = map[string]any{"query": "x", "limit": "5"}
	require.NoError(t, strict.ValidateWithMode(schema(), args, true))
	assert.Equal(t, int64(5), args["limit"])
}

func TestNonEmptyString(t *testing.T) {
	require.NoError(t, NonEmptyString("q", map[string]any{"q": "hi"}))
	require.Error(t, NonEmptyString("q", map[string]any{"q": "  "}))
	require.Error(t, NonEmptyString("q", map[string]any{}))
}
