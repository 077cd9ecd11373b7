package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/voocel/toolrt/internal/obslog"
)

// StdioServer serves the handler over newline-delimited JSON-RPC on stdin/
// stdout, grounded on pkg/mcp/client.go's readResponses loop and
// stdin.Write(append(data, '\n')) write-side convention (mirrored here: the
// runtime is the server reading requests rather than the client reading
// responses). stdout is reserved for RPC frames only; all logging goes to
// the Handler's obslog.Logger, which writers should point at stderr.
type StdioServer struct {
	handler *Handler
	log     *obslog.Logger

	writeMu sync.Mutex
}

// NewStdioServer builds a StdioServer around handler.
func NewStdioServer(handler *Handler, log *obslog.Logger) *StdioServer {
	if log == nil {
		log = obslog.Nop()
	}
	return &StdioServer{handler: handler, log: log}
}

// Serve reads one JSON-RPC request per line from r until EOF, or until a
// line arrives after ctx is canceled (a read already blocked on r is not
// interrupted), dispatching each to a goroutine so a slow tool call never
// blocks the read loop. Responses are written to w as they complete, in
// whatever order they finish (matching the teacher's pending-map
// correlation-by-ID, not submission order).
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Copy: scanner reuses its buffer on the next Scan.
		frame := make([]byte, len(line))
		copy(frame, line)

		var req Message
		if err := json.Unmarshal(frame, &req); err != nil {
			s.write(w, &Message{JSONRPC: "2.0", Error: &Error{Code: ParseError, Message: fmt.Sprintf("parse error: %v", err)}})
			continue
		}

		wg.Add(1)
		go func(req Message) {
			defer wg.Done()
			resp := s.handler.Handle(ctx, &req)
			if resp == nil {
				return
			}
			s.write(w, resp)
		}(req)
	}
	return scanner.Err()
}

// write serializes resp as a single line, matching the teacher's
// append(data, '\n') convention. Concurrent responses are serialized
// against each other so lines are never interleaved.
func (s *StdioServer) write(w io.Writer, resp *Message) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("rpc: failed to marshal response", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(data); err != nil {
		s.log.Error("rpc: failed to write response", "error", err)
	}
}
