// Package rpc exposes the runtime over JSON-RPC 2.0, either newline-
// delimited over stdio (grounded on pkg/mcp/client.go's line-based framing)
// or as plain HTTP POST request/response bodies. The message shape and
// error code table are grounded on pkg/acp/lsp/jsonrpc.go.
package rpc

import (
	"encoding/json"

	"github.com/voocel/toolrt/internal/rterrors"
)

// Message is a JSON-RPC 2.0 request, response, or notification.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error codes per the JSON-RPC 2.0 spec, matching the teacher's
// pkg/acp/lsp/jsonrpc.go constant names and values exactly.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

func errorFor(err error) *Error {
	if rtErr, ok := err.(*rterrors.Error); ok {
		code := InternalError
		switch rtErr.Kind {
		case rterrors.KindValidation:
			code = InvalidParams
		case rterrors.KindToolNotFound:
			code = MethodNotFound
		case rterrors.KindProtocol:
			code = InvalidRequest
		}
		data, _ := json.Marshal(rtErr.Data())
		return &Error{Code: code, Message: rtErr.Error(), Data: data}
	}
	return &Error{Code: InternalError, Message: err.Error()}
}

func errorResponse(id json.RawMessage, err error) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: errorFor(err)}
}

func resultResponse(id json.RawMessage, result any) *Message {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, err)
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: data}
}

// ContentBlock is one element of a tools/call result envelope's content
// array, matching pkg/mcp/client.go's ToolCallResult shape.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the result payload for a successful tools/call.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}
