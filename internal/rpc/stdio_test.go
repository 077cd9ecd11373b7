package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioServeRespondsPerLine(t *testing.T) {
	h := newTestHandler(t)
	s := NewStdioServer(h, nil)

	var in bytes.Buffer
	enc := json.NewEncoder(&in)
	require.NoError(t, enc.Encode(Message{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"}))
	require.NoError(t, enc.Encode(Message{JSONRPC: "2.0", ID: rawID(2), Method: "tools/list"}))

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	scanner := bufio.NewScanner(&out)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	for _, line := range lines {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		assert.Equal(t, "2.0", msg.JSONRPC)
		assert.Nil(t, msg.Error)
	}
}

func TestStdioServeReportsParseError(t *testing.T) {
	h := newTestHandler(t)
	s := NewStdioServer(h, nil)

	in := strings.NewReader("not json\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	var msg Message
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, ParseError, msg.Error.Code)
}

func TestStdioServeSkipsBlankLines(t *testing.T) {
	h := newTestHandler(t)
	s := NewStdioServer(h, nil)

	in := strings.NewReader("\n\n")
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), in, &out) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Empty(t, out.Bytes())
}
