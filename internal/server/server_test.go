package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rcliao/openmemory/internal/dispatch"
	"github.com/rcliao/openmemory/internal/engine"
	"github.com/rcliao/openmemory/internal/mcp"
	"github.com/rcliao/openmemory/internal/store"
)

func newTestHTTP(t *testing.T) *httptest.Server {
	t.Helper()
	eng := engine.New(store.NewMemStore(), store.NewMemIndex(), engine.Options{})
	d := dispatch.New(eng, nil)
	srv := httptest.NewServer(New(d, mcp.NewServer(d, nil, "test"), nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, gjson.Result) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, gjson.ParseBytes(b)
}

func TestHealth(t *testing.T) {
	srv := newTestHTTP(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", gjson.GetBytes(b, "status").Str)
}

func TestEnvelopeEndpoint(t *testing.T) {
	srv := newTestHTTP(t)

	code, body := post(t, srv, "/mcp", `{"type":"memory.save","content":"User prefers docker compose","importance":0.9,"tags":["docker"]}`)
	require.Equal(t, http.StatusOK, code, body.Raw)
	assert.True(t, body.Get("ok").Bool())
	id := body.Get("result.id").Str
	assert.Equal(t, "saved", body.Get("result.status").Str)

	code, body = post(t, srv, "/mcp", `{"type":"memory.search","query":"docker"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body.Get("result.results.0.id").Str)

	code, body = post(t, srv, "/mcp", `{"type":"memory.save","content":"x","importance":7}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body.Get("error.kind").Str)
	assert.Equal(t, "importance", body.Get("error.field").Str)

	code, body = post(t, srv, "/mcp", `{"type":"memory.get","id":"01HX0000000000000000000000"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body.Get("error.kind").Str)

	code, body = post(t, srv, "/mcp", `{"content":"no type"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "type", body.Get("error.field").Str)

	code, _ = post(t, srv, "/mcp", `{broken`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = post(t, srv, "/mcp", `{"type":"memory.explode"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "tool", body.Get("error.field").Str)
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		"validation":         http.StatusBadRequest,
		"not_found":          http.StatusNotFound,
		"unavailable":        http.StatusServiceUnavailable,
		"inconsistent_state": http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(dispatch.Response{Error: &dispatch.ErrorBody{Kind: kind}}), kind)
	}
	assert.Equal(t, http.StatusOK, statusFor(dispatch.Response{OK: true}))
}

func TestRPCEndpoint(t *testing.T) {
	srv := newTestHTTP(t)

	code, body := post(t, srv, "/rpc", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Get("result.tools").Array(), 6)

	resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/rpc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebsocket(t *testing.T) {
	srv := newTestHTTP(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"memory_save","arguments":{"content":"over the socket"}}}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	r := gjson.ParseBytes(msg)
	assert.Equal(t, int64(1), r.Get("id").Int())
	assert.False(t, r.Get("result.isError").Bool())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"memory_search","arguments":{"query":"socket"}}}`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	env := gjson.Parse(gjson.GetBytes(msg, "result.content.0.text").Str)
	assert.Equal(t, "over the socket", env.Get("result.results.0.content").Str)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":3,"method":"nope"}`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, int64(mcp.CodeMethodNotFound), gjson.GetBytes(msg, "error.code").Int())
}
