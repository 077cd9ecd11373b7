// Package remoteengine hosts long-lived inference engines in this process
// and exposes them to other processes over an authenticated RPC channel,
// grounded on original_source/src/tooluniverse/vllm_proxy.py's
// EngineRegistry/RemoteVLLMEngine design: one engine instance per key,
// shared by every caller that asks for it, instead of reloading model
// weights per call.
package remoteengine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SamplingParams mirrors the subset of vllm_proxy.py's sampling_kwargs the
// proxy actually forwards: temperature and a token budget.
type SamplingParams struct {
	Temperature *float64
	MaxTokens   *int
}

// Engine is a long-lived inference backend. Implementations own their own
// model/runtime handle; the registry only tracks engine lifetime and
// routes generate calls.
type Engine interface {
	// Metadata describes the engine for tools/find-style introspection.
	Metadata() map[string]any
	// Generate produces one completion per prompt. A nil entry in the
	// result means that prompt's output could not be produced (e.g. it
	// failed JSON validation under ReturnJSON).
	Generate(ctx context.Context, prompts []string, sampling *SamplingParams, returnJSON bool, jsonSchema map[string]any) ([]*string, error)
}

// NormalizeEngineKwargs coerces a raw kwargs map the way
// _normalize_engine_kwargs does: known numeric settings are parsed to int,
// with an invalid or missing value simply dropped rather than rejected.
func NormalizeEngineKwargs(kwargs map[string]any) map[string]any {
	normalized := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		normalized[k] = v
	}
	for _, key := range []string{"max_model_len", "tensor_parallel_size"} {
		raw, ok := normalized[key]
		if !ok {
			continue
		}
		n, ok := toInt(raw)
		if !ok {
			delete(normalized, key)
			continue
		}
		if key == "tensor_parallel_size" && n < 1 {
			n = 1
		}
		normalized[key] = n
	}
	return normalized
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// MakeEngineKey derives a stable registry key for an engine, mirroring
// make_engine_key: an explicit engineID wins outright, otherwise the key is
// built from the model name plus its sorted, normalized kwargs so that two
// requests for the same model+config land on the same engine.
func MakeEngineKey(engineID, modelName string, kwargs map[string]any) string {
	if engineID != "" {
		return engineID
	}
	normalized := NormalizeEngineKwargs(kwargs)
	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{modelName}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, normalized[k]))
	}
	return strings.Join(parts, "|")
}
