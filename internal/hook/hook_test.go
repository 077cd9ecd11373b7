package hook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voocel/toolrt/internal/toolapi"
)

func TestPreHookAbortShortCircuits(t *testing.T) {
	r := New(nil)
	r.RegisterPre("search", "gate", 0, func(ctx context.Context, ec *toolapi.ExecutionContext) Decision {
		return Decision{Abort: true, AbortResult: &toolapi.Result{Success: false, Error: "blocked"}}
	})

	d := r.RunPre(context.Background(), &toolapi.ExecutionContext{ToolName: "search"})
	require.True(t, d.Abort)
	assert.Equal(t, "blocked", d.AbortResult.Error)
}

func TestPreHookOrderingByPriority(t *testing.T) {
	r := New(nil)
	var order []string
	r.RegisterPre("*", "second", 10, func(ctx context.Context, ec *toolapi.ExecutionContext) Decision {
		order = append(order, "second")
		return Decision{}
	})
	r.RegisterPre("*", "first", 1, func(ctx context.Context, ec *toolapi.ExecutionContext) Decision {
		order = append(order, "first")
		return Decision{}
	})

	r.RunPre(context.Background(), &toolapi.ExecutionContext{ToolName: "anything"})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPostHookFailOpenKeepsPriorResult(t *testing.T) {
	r := New(nil)
	r.RegisterPost("*", "broken", 0, nil, func(ctx context.Context, ec *toolapi.ExecutionContext, result *toolapi.Result, callErr error) (*toolapi.Result, error) {
		return nil, errors.New("boom")
	})

	original := &toolapi.Result{Success: true, Data: map[string]any{"x": 1}}
	result, err := r.RunPost(context.Background(), &toolapi.ExecutionContext{ToolName: "t"}, original, nil)
	require.NoError(t, err)
	assert.Same(t, original, result)
}

func TestPostHookConditionSkipsWhenFalse(t *testing.T) {
	r := New(nil)
	var called bool
	r.RegisterPost("*", "cond", 0, OutputLengthAtLeast("text", 100), func(ctx context.Context, ec *toolapi.ExecutionContext, result *toolapi.Result, callErr error) (*toolapi.Result, error) {
		called = true
		return result, callErr
	})

	result := &toolapi.Result{Data: map[string]any{"text": "short"}}
	r.RunPost(context.Background(), &toolapi.ExecutionContext{}, result, nil)
	assert.False(t, called)
}

func TestSummarizerBelowThresholdIsNoop(t *testing.T) {
	s := &Summarizer{ChunkSize: 100, SummarizerTool: "Summarizer"}
	hook := s.NewSummarizePostHook("output")
	result := &toolapi.Result{Success: true, Data: map[string]any{"output": "short text"}}
	out, err := hook(context.Background(), &toolapi.ExecutionContext{ToolName: "t"}, result, nil)
	require.NoError(t, err)
	assert.Equal(t, "short text", out.Data["output"])
}

func TestSummarizerChunksAndMerges(t *testing.T) {
	longText := ""
	for i := 0; i < 50; i++ {
		longText += "This is a sentence that repeats many times to build long output. "
	}

	var calls int
	s := &Summarizer{
		ChunkSize:      200,
		SummarizerTool: "Summarizer",
		Call: func(ctx context.Context, toolName string, args map[string]any) (*toolapi.Result, error) {
			calls++
			chunk := args["tool_output"].(string)
			return &toolapi.Result{Success: true, Data: map[string]any{"summary": "summary-of:" + chunk[:minInt(10, len(chunk))]}}, nil
		},
	}
	hook := s.NewSummarizePostHook("output")
	result := &toolapi.Result{Success: true, Data: map[string]any{"output": longText}}
	out, err := hook(context.Background(), &toolapi.ExecutionContext{ToolName: "t"}, result, nil)
	require.NoError(t, err)
	assert.Greater(t, calls, 1)
	assert.NotEqual(t, longText, out.Data["output"])
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestFileOffloadWritesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	f := NewFileOffload(dir, 0)
	hook := f.NewOffloadPostHook("output", "toolout", ".txt", 10, true)

	result := &toolapi.Result{Success: true, Data: map[string]any{"output": "this text is definitely over the threshold"}}
	out, err := hook(context.Background(), &toolapi.ExecutionContext{ToolName: "t"}, result, nil)
	require.NoError(t, err)

	path, ok := out.Data["output_file"].(string)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "this text is definitely over the threshold", string(data))
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) == dir)
}

func TestFileOffloadCleanupPrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	require.NoError(t, os.Chtimes(stale, time.Now().Add(-48*time.Hour), time.Now().Add(-48*time.Hour)))

	f := NewFileOffload(dir, time.Hour)
	hook := f.NewOffloadPostHook("output", "toolout", ".txt", 1, false)
	result := &toolapi.Result{Success: true, Data: map[string]any{"output": "fresh over threshold text"}}
	_, err := hook(context.Background(), &toolapi.ExecutionContext{ToolName: "t"}, result, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr))
}
