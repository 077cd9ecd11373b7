package remoteengine

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/rpc"
)

// Server exposes a Registry over the same JSON-RPC framing internal/rpc
// uses for the tool surface (SPEC_FULL §4.8: "a single RPC codec serves
// both the external tool surface and the internal engine-proxy channel"),
// but guarded by a shared authkey instead of the tool surface's open
// access, and intended to be bound to loopback only.
type Server struct {
	registry *Registry
	authKey  string
	log      *obslog.Logger
}

// NewServer builds a Server. authKey must be non-empty; every request must
// present it via the X-Toolrt-Authkey header.
func NewServer(registry *Registry, authKey string, log *obslog.Logger) *Server {
	if log == nil {
		log = obslog.Nop()
	}
	return &Server{registry: registry, authKey: authKey, log: log}
}

// Router builds a chi router exposing POST /engine/rpc, guarded by authKey.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/engine/rpc", s.handle)
	return r
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(&rpc.Message{JSONRPC: "2.0", Error: &rpc.Error{Code: rpc.InvalidRequest, Message: "missing or invalid authkey"}})
		return
	}

	var req rpc.Message
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, &rpc.Message{JSONRPC: "2.0", Error: &rpc.Error{Code: rpc.ParseError, Message: "parse error: " + err.Error()}})
		return
	}

	resp := s.dispatch(r.Context(), &req)
	writeMessage(w, resp)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authKey == "" {
		return false
	}
	got := r.Header.Get("X-Toolrt-Authkey")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.authKey)) == 1
}

func (s *Server) dispatch(ctx context.Context, req *rpc.Message) *rpc.Message {
	switch req.Method {
	case "engine/metadata":
		return s.handleMetadata(req)
	case "engine/list":
		return s.handleList(req)
	case "engine/generate":
		return s.handleGenerate(ctx, req)
	default:
		return &rpc.Message{JSONRPC: "2.0", ID: req.ID, Error: &rpc.Error{Code: rpc.MethodNotFound, Message: "unknown method " + req.Method}}
	}
}

type engineKeyParams struct {
	EngineKey string `json:"engine_key"`
}

func (s *Server) handleMetadata(req *rpc.Message) *rpc.Message {
	var params engineKeyParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	engine, ok := s.registry.GetEngine(params.EngineKey)
	if !ok {
		return &rpc.Message{JSONRPC: "2.0", ID: req.ID, Error: &rpc.Error{Code: rpc.MethodNotFound, Message: "no engine registered with key " + params.EngineKey}}
	}
	return resultMessage(req.ID, engine.Metadata())
}

func (s *Server) handleList(req *rpc.Message) *rpc.Message {
	return resultMessage(req.ID, map[string]any{"keys": s.registry.ListKeys()})
}

type generateParams struct {
	EngineKey   string          `json:"engine_key"`
	Prompts     []string        `json:"prompts"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	ReturnJSON  bool            `json:"return_json,omitempty"`
	JSONSchema  json.RawMessage `json:"json_schema,omitempty"`
}

type generateResult struct {
	Outputs []*string `json:"outputs"`
}

func (s *Server) handleGenerate(ctx context.Context, req *rpc.Message) *rpc.Message {
	var params generateParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &rpc.Message{JSONRPC: "2.0", ID: req.ID, Error: &rpc.Error{Code: rpc.InvalidParams, Message: "malformed generate params: " + err.Error()}}
		}
	}
	engine, ok := s.registry.GetEngine(params.EngineKey)
	if !ok {
		return &rpc.Message{JSONRPC: "2.0", ID: req.ID, Error: &rpc.Error{Code: rpc.MethodNotFound, Message: "no engine registered with key " + params.EngineKey}}
	}

	var schema map[string]any
	if len(params.JSONSchema) > 0 {
		if err := json.Unmarshal(params.JSONSchema, &schema); err != nil {
			return &rpc.Message{JSONRPC: "2.0", ID: req.ID, Error: &rpc.Error{Code: rpc.InvalidParams, Message: "malformed json_schema: " + err.Error()}}
		}
	}
	if params.ReturnJSON && schema == nil {
		s.log.Warn("remoteengine: return_json requested without json_schema; structured output falls back to prompt-only guidance")
	}

	sampling := &SamplingParams{Temperature: params.Temperature, MaxTokens: params.MaxTokens}
	outputs, err := engine.Generate(ctx, params.Prompts, sampling, params.ReturnJSON, schema)
	if err != nil {
		return &rpc.Message{JSONRPC: "2.0", ID: req.ID, Error: &rpc.Error{Code: rpc.InternalError, Message: err.Error()}}
	}
	return resultMessage(req.ID, generateResult{Outputs: outputs})
}

func resultMessage(id json.RawMessage, result any) *rpc.Message {
	data, err := json.Marshal(result)
	if err != nil {
		return &rpc.Message{JSONRPC: "2.0", ID: id, Error: &rpc.Error{Code: rpc.InternalError, Message: err.Error()}}
	}
	return &rpc.Message{JSONRPC: "2.0", ID: id, Result: data}
}

func writeMessage(w http.ResponseWriter, msg *rpc.Message) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}
