// Package dispatch exposes engine operations as named tools with typed
// parameter contracts and a uniform response envelope. Transports (stdio
// JSON-RPC, HTTP, websocket) all route through a Dispatcher.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/openmemory/internal/engine"
)

// Tool describes one callable operation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`

	run func(ctx context.Context, a args) (any, error)
}

// Response is the envelope every tool call returns.
type Response struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a structured engine error across the wire.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Dispatcher routes tool calls to the engine.
type Dispatcher struct {
	eng   *engine.Engine
	log   *slog.Logger
	tools map[string]*Tool
}

// New builds a dispatcher with the memory tools registered.
func New(eng *engine.Engine, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dispatcher{eng: eng, log: logger, tools: make(map[string]*Tool)}
	for _, t := range d.builtin() {
		d.tools[t.Name] = t
	}
	return d
}

// CanonicalName maps a transport tool name ("memory_save", "memory.save",
// "save") to the registry name.
func CanonicalName(name string) string {
	name = strings.TrimPrefix(name, "memory_")
	name = strings.TrimPrefix(name, "memory.")
	return name
}

// Has reports whether name resolves to a registered tool.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.tools[CanonicalName(name)]
	return ok
}

// Tools returns the registered tools sorted by name.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs a tool with raw JSON arguments and wraps the outcome.
func (d *Dispatcher) Call(ctx context.Context, name string, raw []byte) Response {
	start := time.Now()
	canonical := CanonicalName(name)

	result, err := d.call(ctx, canonical, raw)

	attrs := []any{"tool_name", canonical, "duration", time.Since(start)}
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if err != nil {
		body := errorBody(err)
		attrs = append(attrs, "kind", body.Kind, "error", err.Error())
		switch engine.Kind(body.Kind) {
		case engine.KindValidation, engine.KindNotFound:
			d.log.Warn("tool call rejected", attrs...)
		default:
			d.log.Error("tool call failed", attrs...)
		}
		return Response{OK: false, Error: body}
	}
	d.log.Info("tool call completed", attrs...)
	return Response{OK: true, Result: result}
}

func (d *Dispatcher) call(ctx context.Context, name string, raw []byte) (any, error) {
	t, ok := d.tools[name]
	if !ok {
		return nil, &engine.Error{Kind: engine.KindValidation, Op: name, Field: "tool", Err: fmt.Errorf("unknown tool %q", name)}
	}
	a, err := parseArgs(name, raw)
	if err != nil {
		return nil, err
	}
	return t.run(ctx, a)
}

func errorBody(err error) *ErrorBody {
	var e *engine.Error
	if errors.As(err, &e) {
		return &ErrorBody{Kind: string(e.Kind), Message: e.Message(), Field: e.Field, ID: e.ID}
	}
	return &ErrorBody{Kind: string(engine.KindUnavailable), Message: err.Error()}
}

type requestIDKey struct{}

// WithRequestID tags ctx with a transport request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
