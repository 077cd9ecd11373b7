package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voocel/toolrt/internal/obslog"
)

// NewHTTPRouter builds a chi router exposing handler over a single POST
// /rpc route, accepting one JSON-RPC request object per call (§4.7: the
// request body is the whole message, no extra framing is used).
func NewHTTPRouter(handler *Handler, log *obslog.Logger) chi.Router {
	if log == nil {
		log = obslog.Nop()
	}
	r := chi.NewRouter()
	r.Post("/rpc", newRPCHandlerFunc(handler, log))
	return r
}

func newRPCHandlerFunc(handler *Handler, log *obslog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Message
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, &Message{JSONRPC: "2.0", Error: &Error{Code: ParseError, Message: "parse error: " + err.Error()}})
			return
		}

		// A client disconnect is not passed on to the tool: the call runs to
		// completion and its response is discarded if the client has gone
		// (§4.7).
		resp := handler.Handle(context.WithoutCancel(r.Context()), &req)
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, resp)
	}
}

func writeJSON(w http.ResponseWriter, msg *Message) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
