package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voocel/toolrt/internal/dispatcher"
	"github.com/voocel/toolrt/internal/finder"
	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/registry"
	"github.com/voocel/toolrt/internal/rterrors"
	"github.com/voocel/toolrt/internal/toolapi"
)

// Handler dispatches JSON-RPC method calls against the runtime. It has no
// transport dependency, so the stdio and HTTP servers both wrap the same
// Handle call.
type Handler struct {
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	finder     *finder.Finder
	log        *obslog.Logger
}

// Options configures a new Handler.
type Options struct {
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Finder     *finder.Finder
	Logger     *obslog.Logger
}

// New builds a Handler.
func New(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = obslog.Nop()
	}
	return &Handler{
		registry:   opts.Registry,
		dispatcher: opts.Dispatcher,
		finder:     opts.Finder,
		log:        log,
	}
}

// Handle processes one JSON-RPC request and returns the response message to
// send back. A notification (no ID) still runs to completion but the caller
// may discard the returned message's body if the transport requires it.
func (h *Handler) Handle(ctx context.Context, req *Message) *Message {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, rterrors.Protocol("missing or invalid jsonrpc version"))
	}

	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "tools/list":
		return h.handleToolsList(req)
	case "tools/find":
		return h.handleToolsFind(ctx, req)
	case "tools/call":
		return h.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, &rterrors.Error{Kind: rterrors.KindToolNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)})
	}
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerName      string `json:"serverName"`
}

func (h *Handler) handleInitialize(req *Message) *Message {
	return resultResponse(req.ID, initializeResult{ProtocolVersion: "2.0", ServerName: "toolrt"})
}

type toolsListResult struct {
	Tools []toolListing `json:"tools"`
}

type toolListing struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	InputSchema toolapi.ParameterSchema `json:"inputSchema"`
	Tags        []string                `json:"tags,omitempty"`
	Category    string                  `json:"category,omitempty"`
}

func (h *Handler) handleToolsList(req *Message) *Message {
	specs := h.registry.List()
	tools := make([]toolListing, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, toolListing{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameter,
			Tags:        spec.Tags,
			Category:    spec.Category,
		})
	}
	return resultResponse(req.ID, toolsListResult{Tools: tools})
}

type toolsFindParams struct {
	Query    string `json:"query"`
	Strategy string `json:"strategy,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type toolsFindResult struct {
	Matches []finder.Match `json:"matches"`
}

func (h *Handler) handleToolsFind(ctx context.Context, req *Message) *Message {
	if h.finder == nil {
		return errorResponse(req.ID, &rterrors.Error{Kind: rterrors.KindProtocol, Message: "tool discovery is not configured"})
	}
	var params toolsFindParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, rterrors.Protocol("malformed tools/find params: "+err.Error()))
		}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	matches, err := h.finder.Find(ctx, params.Query, finder.Strategy(params.Strategy), limit)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, toolsFindResult{Matches: matches})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (h *Handler) handleToolsCall(ctx context.Context, req *Message) *Message {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, rterrors.Protocol("malformed tools/call params: "+err.Error()))
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, rterrors.Validation("name", "non-empty string", "empty"))
	}

	arguments, err := parseCallArguments(params.Arguments)
	if err != nil {
		return errorResponse(req.ID, rterrors.Protocol("malformed tools/call arguments: "+err.Error()))
	}

	// Arguments arriving over this surface get lenient coercion — a caller
	// sending "42" for a number property shouldn't be rejected.
	result, err := h.dispatcher.RunOne(ctx, toolapi.FunctionCall{Name: params.Name, Arguments: arguments, Lenient: true})
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, toolResultEnvelope(result))
}

// parseCallArguments accepts arguments as either a JSON object or a
// JSON-encoded string, parsing the latter so both shapes reach the
// dispatcher as a plain argument map.
func parseCallArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object or a JSON-encoded string")
	}
	if strings.TrimSpace(encoded) == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(encoded), &obj); err != nil {
		return nil, fmt.Errorf("decoding JSON-encoded arguments string: %w", err)
	}
	return obj, nil
}

// toolResultEnvelope serializes a dispatcher result into the
// content:[{type:"text",text:...}] shape every tools/call response uses.
func toolResultEnvelope(result *toolapi.Result) ToolCallResult {
	text, err := json.Marshal(result)
	if err != nil {
		return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: err.Error()}}, IsError: true}
	}
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: string(text)}},
		IsError: !result.Success,
	}
}
