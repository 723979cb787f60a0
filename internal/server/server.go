// Package server exposes the memory tools over HTTP: a typed envelope
// endpoint, JSON-RPC over POST, and JSON-RPC over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/rcliao/openmemory/internal/dispatch"
	"github.com/rcliao/openmemory/internal/engine"
	"github.com/rcliao/openmemory/internal/mcp"
)

const maxBody = 8 << 20

// Server is the HTTP front end.
type Server struct {
	d        *dispatch.Dispatcher
	rpc      *mcp.Server
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server routing through d and rpc.
func New(d *dispatch.Dispatcher, rpc *mcp.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		d:   d,
		rpc: rpc,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /mcp", s.envelope)
	mux.HandleFunc("POST /rpc", s.jsonrpc)
	mux.HandleFunc("GET /ws", s.serveWS)
	return s.withRequestID(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(dispatch.WithRequestID(r.Context(), id)))
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// envelope handles {"type":"memory.save", ...fields}. The remaining fields are
// the tool arguments.
func (s *Server) envelope(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, invalid("body", "read request body"))
		return
	}
	if !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, invalid("", "request body is not valid JSON"))
		return
	}
	typ := gjson.GetBytes(body, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		writeJSON(w, http.StatusBadRequest, invalid("type", "type is required"))
		return
	}

	resp := s.d.Call(r.Context(), typ.Str, body)
	writeJSON(w, statusFor(resp), resp)
}

func (s *Server) jsonrpc(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}
	out := s.rpc.Handle(r.Context(), body)
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// serveWS speaks the same JSON-RPC as stdio, one message per frame.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	defer wg.Wait()
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket closed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := s.rpc.Handle(ctx, msg)
			if out == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				s.log.Warn("websocket write failed", "err", err)
			}
		}()
	}
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(resp dispatch.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch engine.Kind(resp.Error.Kind) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalid(field, msg string) dispatch.Response {
	return dispatch.Response{Error: &dispatch.ErrorBody{Kind: string(engine.KindValidation), Message: msg, Field: field}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
