package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/openmemory/internal/engine"
	"github.com/rcliao/openmemory/internal/store"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	eng := engine.New(store.NewMemStore(), store.NewMemIndex(), engine.Options{})
	return New(eng, nil)
}

func call(t *testing.T, d *Dispatcher, name, args string) Response {
	t.Helper()
	return d.Call(context.Background(), name, []byte(args))
}

// roundTrip decodes a response the way a transport client sees it.
func roundTrip(t *testing.T, resp Response) map[string]any {
	t.Helper()
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func saveID(t *testing.T, d *Dispatcher, args string) string {
	t.Helper()
	resp := call(t, d, "save", args)
	require.True(t, resp.OK, "save failed: %+v", resp.Error)
	return resp.Result.(SaveResult).ID
}

func TestToolsRegistered(t *testing.T) {
	d := newTestDispatcher(t)
	var names []string
	for _, tool := range d.Tools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.Equal(t, []string{"delete", "get", "list", "save", "search", "update"}, names)

	for _, name := range []string{"memory_save", "memory.search", "get"} {
		assert.True(t, d.Has(name), name)
	}
	assert.False(t, d.Has("memory_explode"))
}

func TestSaveAndSearch(t *testing.T) {
	d := newTestDispatcher(t)
	id := saveID(t, d, `{"content":"User prefers docker compose for deployments","importance":0.9,"tags":["docker","deploy"]}`)

	resp := call(t, d, "memory_search", `{"query":"docker","limit":5}`)
	require.True(t, resp.OK)
	out := roundTrip(t, resp)
	result := out["result"].(map[string]any)
	assert.Equal(t, "docker", result["query"])
	hits := result["results"].([]any)
	require.Len(t, hits, 1)
	hit := hits[0].(map[string]any)
	assert.Equal(t, id, hit["id"])
	assert.Equal(t, []any{"docker", "deploy"}, hit["tags"])
	assert.Contains(t, hit, "score")
	assert.Contains(t, hit, "created_at")
	assert.NotContains(t, out, "error")
}

func TestSaveResultShape(t *testing.T) {
	d := newTestDispatcher(t)
	out := roundTrip(t, call(t, d, "save", `{"content":"shape"}`))
	assert.Equal(t, true, out["ok"])
	result := out["result"].(map[string]any)
	assert.Equal(t, "saved", result["status"])
	assert.Len(t, result["id"], 26)
	assert.NotEmpty(t, result["created_at"])
}

func TestArgumentValidation(t *testing.T) {
	d := newTestDispatcher(t)
	cases := []struct {
		tool, args, field string
	}{
		{"save", `{}`, "content"},
		{"save", `{"content":42}`, "content"},
		{"save", `{"content":"x","importance":"high"}`, "importance"},
		{"save", `{"content":"x","importance":1.5}`, "importance"},
		{"save", `{"content":"x","tags":"docker"}`, "tags"},
		{"save", `{"content":"x","tags":[1]}`, "tags"},
		{"save", `[1,2]`, ""},
		{"save", `{not json`, ""},
		{"search", `{"query":""}`, "query"},
		{"search", `{"query":"x","limit":2.5}`, "limit"},
		{"search", `{"query":"x","limit":-1}`, "limit"},
		{"list", `{"limit":"ten"}`, "limit"},
		{"get", `{"id":"not-a-ulid"}`, "id"},
		{"get", `{}`, "id"},
		{"update", `{"id":"01HX0000000000000000000000"}`, ""},
		{"delete", `{"id":7}`, "id"},
		{"explode", `{}`, "tool"},
	}
	for _, tc := range cases {
		t.Run(tc.tool+tc.args, func(t *testing.T) {
			resp := call(t, d, tc.tool, tc.args)
			require.False(t, resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "validation", resp.Error.Kind)
			assert.Equal(t, tc.field, resp.Error.Field)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestNullArgumentsAreEmpty(t *testing.T) {
	d := newTestDispatcher(t)
	resp := call(t, d, "list", `null`)
	require.True(t, resp.OK)
	resp = d.Call(context.Background(), "list", nil)
	require.True(t, resp.OK)
	assert.Equal(t, 0, resp.Result.(ListResult).Total)
}

func TestGetUpdateDeleteLifecycle(t *testing.T) {
	d := newTestDispatcher(t)
	id := saveID(t, d, `{"content":"first draft","tags":["a"]}`)

	resp := call(t, d, "get", `{"id":"`+id+`"}`)
	require.True(t, resp.OK)
	assert.Equal(t, "first draft", resp.Result.(GetResult).Memory.Content)

	resp = call(t, d, "update", `{"id":"`+id+`","content":"second draft","tags":[]}`)
	require.True(t, resp.OK, "%+v", resp.Error)
	upd := resp.Result.(UpdateResult)
	assert.Equal(t, "updated", upd.Status)

	resp = call(t, d, "get", `{"id":"`+id+`"}`)
	require.True(t, resp.OK)
	mem := resp.Result.(GetResult).Memory
	assert.Equal(t, "second draft", mem.Content)
	assert.Empty(t, mem.Tags)
	assert.True(t, mem.UpdatedAt.Equal(upd.UpdatedAt))

	resp = call(t, d, "list", `{}`)
	require.True(t, resp.OK)
	assert.Equal(t, 1, resp.Result.(ListResult).Total)

	resp = call(t, d, "delete", `{"id":"`+id+`"}`)
	require.True(t, resp.OK)
	assert.Equal(t, DeleteResult{ID: id, Status: "deleted"}, resp.Result)

	resp = call(t, d, "delete", `{"id":"`+id+`"}`)
	require.False(t, resp.OK)
	assert.Equal(t, "not_found", resp.Error.Kind)
	assert.Equal(t, id, resp.Error.ID)

	resp = call(t, d, "get", `{"id":"`+id+`"}`)
	require.False(t, resp.OK)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestListOmitsScore(t *testing.T) {
	d := newTestDispatcher(t)
	saveID(t, d, `{"content":"listed","user_id":"u1"}`)
	saveID(t, d, `{"content":"other","user_id":"u2"}`)

	out := roundTrip(t, call(t, d, "list", `{"user_id":"u1"}`))
	result := out["result"].(map[string]any)
	assert.Equal(t, float64(1), result["total"])
	mem := result["memories"].([]any)[0].(map[string]any)
	assert.Equal(t, "listed", mem["content"])
	assert.NotContains(t, mem, "score")
}

func TestErrorBodyForeignError(t *testing.T) {
	body := errorBody(context.DeadlineExceeded)
	assert.Equal(t, "unavailable", body.Kind)
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}
