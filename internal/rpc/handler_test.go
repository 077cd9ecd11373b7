package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voocel/toolrt/internal/cache"
	"github.com/voocel/toolrt/internal/dispatcher"
	"github.com/voocel/toolrt/internal/finder"
	"github.com/voocel/toolrt/internal/hook"
	"github.com/voocel/toolrt/internal/registry"
	"github.com/voocel/toolrt/internal/toolapi"
)

type echoTool struct{}

func (echoTool) Execute(ctx context.Context, args map[string]any) (*toolapi.Result, error) {
	return &toolapi.Result{Success: true, Data: args}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	r := registry.New()
	r.RegisterFactory("echo", func(spec *toolapi.Spec) (toolapi.Instance, error) { return echoTool{}, nil })
	require.NoError(t, r.Register(&toolapi.Spec{Name: "echo", Type: "echo", Description: "echoes its arguments"}))

	c, err := cache.New(cache.Options{MemorySize: 16})
	require.NoError(t, err)
	d := dispatcher.New(dispatcher.Options{Registry: r, Cache: c, Hooks: hook.New(nil)})
	f := finder.New(finder.Options{Registry: r})

	return New(Options{Registry: r, Dispatcher: d, Finder: f})
}

func rawID(n int) json.RawMessage { b, _ := json.Marshal(n); return b }

func TestHandleInitialize(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"})
	require.Nil(t, resp.Error)
	var result initializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2.0", result.ProtocolVersion)
}

func TestHandleToolsList(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "tools/list"})
	require.Nil(t, resp.Error)
	var result toolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "echo", result.Tools[0].Name)
}

func TestHandleToolsFindKeyword(t *testing.T) {
	h := newTestHandler(t)
	params, _ := json.Marshal(toolsFindParams{Query: "echo", Strategy: "keyword"})
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "tools/find", Params: params})
	require.Nil(t, resp.Error)
	var result toolsFindResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, "echo", result.Matches[0].Name)
}

func TestHandleToolsCallSuccess(t *testing.T) {
	h := newTestHandler(t)
	params, _ := json.Marshal(toolsCallParams{Name: "echo", Arguments: mustMarshal(t, map[string]any{"x": "y"})})
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
}

func TestHandleToolsCallAcceptsJSONEncodedArgumentsString(t *testing.T) {
	h := newTestHandler(t)
	params, _ := json.Marshal(toolsCallParams{Name: "echo", Arguments: mustMarshal(t, `{"x":"y"}`)})
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
}

func TestHandleToolsCallUnknownTool(t *testing.T) {
	h := newTestHandler(t)
	params, _ := json.Marshal(toolsCallParams{Name: "missing"})
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestHandleUnknownMethod(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(context.Background(), &Message{JSONRPC: "2.0", ID: rawID(1), Method: "bogus/method"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestHandleRejectsWrongJSONRPCVersion(t *testing.T) {
	h := newTestHandler(t)
	resp := h.Handle(context.Background(), &Message{JSONRPC: "1.0", ID: rawID(1), Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequest, resp.Error.Code)
}
