// Package mcp serves the memory tools over JSON-RPC 2.0 using the Model
// Context Protocol method set: initialize, tools/list, tools/call and ping.
// Messages are newline-delimited JSON on a byte stream (stdio), or single
// messages handed in by another transport.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/rcliao/openmemory/internal/dispatch"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// ServerName is reported in initialize.
const ServerName = "openmemory"

// toolPrefix namespaces tool names on the wire.
const toolPrefix = "memory_"

// maxMessage bounds one line of input.
const maxMessage = 8 << 20

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolContent is one content block of a tools/call result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of tools/call. Tool-level failures are reported
// here with IsError set, not as JSON-RPC errors.
type CallResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError"`
}

// Server answers JSON-RPC requests with a Dispatcher.
type Server struct {
	d       *dispatch.Dispatcher
	log     *slog.Logger
	version string
}

// NewServer creates a server. version is reported in serverInfo.
func NewServer(d *dispatch.Dispatcher, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{d: d, log: logger, version: version}
}

// Serve reads newline-delimited requests from r until EOF and writes one
// response line per request to w. Requests are handled concurrently; a
// response may precede the response to an earlier request. Serve waits for
// in-flight requests before returning.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &lineWriter{w: w}
	var wg sync.WaitGroup
	defer wg.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessage)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg := append([]byte(nil), line...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := s.Handle(ctx, msg); resp != nil {
				if err := out.write(resp); err != nil {
					s.log.Error("write response", "err", err)
				}
			}
		}()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

// Handle processes one JSON-RPC message and returns the encoded response, or
// nil for notifications.
func (s *Server) Handle(ctx context.Context, msg []byte) []byte {
	resp := s.handle(ctx, msg)
	if resp == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encode response", "err", err)
		b, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "internal error"))
	}
	return b
}

func (s *Server) handle(ctx context.Context, msg []byte) *Response {
	if !gjson.ValidBytes(msg) {
		return errorResponse(nil, CodeParseError, "parse error")
	}
	var req request
	if err := json.Unmarshal(msg, &req); err != nil {
		return errorResponse(nil, CodeInvalidRequest, "invalid request")
	}
	notification := len(req.ID) == 0
	if req.JSONRPC != "2.0" || req.Method == "" {
		if notification {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	ctx = dispatch.WithRequestID(ctx, uuid.NewString())
	s.log.Debug("rpc request", "method", req.Method, "request_id", dispatch.RequestID(ctx))

	result, rpcErr := s.route(ctx, req)
	if notification {
		return nil
	}
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) route(ctx context.Context, req request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": s.version,
			},
		}, nil
	case "ping", "notifications/initialized", "notifications/cancelled":
		return struct{}{}, nil
	case "tools/list":
		return map[string]any{"tools": s.tools()}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) tools() []dispatch.Tool {
	tools := s.d.Tools()
	for i := range tools {
		tools[i].Name = toolPrefix + tools[i].Name
	}
	return tools
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *Error) {
	if len(params) == 0 || !gjson.ValidBytes(params) {
		return nil, &Error{Code: CodeInvalidParams, Message: "tools/call requires params"}
	}
	name := gjson.GetBytes(params, "name")
	if name.Type != gjson.String || !s.d.Has(name.Str) {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown tool %q", name.String())}
	}
	var args []byte
	if a := gjson.GetBytes(params, "arguments"); a.Exists() {
		args = []byte(a.Raw)
	}

	resp := s.d.Call(ctx, name.Str, args)
	text, err := json.Marshal(resp)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: "encode tool result"}
	}
	return CallResult{
		Content: []ToolContent{{Type: "text", Text: string(text)}},
		IsError: !resp.OK,
	}, nil
}

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg}}
}

type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) write(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}
