package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	supabase "github.com/mynews-app/service_layer/supabase/client"
)

// fakePostgREST keeps rows in memory and understands the subset of
// PostgREST the Supabase backend uses.
type fakePostgREST struct {
	mu     sync.Mutex
	rows   map[string]json.RawMessage
	rpc    []string
	notify func(path string)
}

func newFakePostgREST() *fakePostgREST {
	return &fakePostgREST{rows: make(map[string]json.RawMessage)}
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/rest/v1/rpc/docstore_merge":
		var req struct {
			Path   string         `json:"p_path"`
			Fields map[string]any `json:"p_fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.rpc = append(f.rpc, "merge")
		raw, ok := f.rows[req.Path]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"P0002","message":"not found"}`))
			return
		}
		merged, _ := mergeFields(raw, req.Fields)
		f.rows[req.Path] = merged
		f.changed(req.Path)
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/rest/v1/rpc/docstore_apply_batch":
		var req struct {
			Ops []supabaseOp `json:"ops"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.rpc = append(f.rpc, fmt.Sprintf("batch:%d", len(req.Ops)))
		for _, op := range req.Ops {
			if op.Op == "delete" {
				delete(f.rows, op.Path)
			} else {
				f.rows[op.Path] = op.Data
			}
			f.changed(op.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/rest/v1/documents":
		f.table(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePostgREST) changed(path string) {
	if f.notify != nil {
		f.notify(path)
	}
}

func (f *fakePostgREST) table(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	match := func(path string, data json.RawMessage) bool {
		for key, vals := range q {
			val := strings.TrimPrefix(vals[0], "eq.")
			switch {
			case key == "path" && path != val:
				return false
			case key == "parent" && Parent(path) != val:
				return false
			case strings.HasPrefix(key, "data->>"):
				var obj map[string]any
				_ = json.Unmarshal(data, &obj)
				if fmt.Sprint(obj[strings.TrimPrefix(key, "data->>")]) != val {
					return false
				}
			}
		}
		return true
	}

	switch r.Method {
	case http.MethodPost:
		var rows []supabaseRow
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &rows)
		for _, row := range rows {
			f.rows[row.Path] = row.Data
			f.changed(row.Path)
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		for p, d := range f.rows {
			if match(p, d) {
				delete(f.rows, p)
				f.changed(p)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet, http.MethodHead:
		var out []supabaseRow
		for p, d := range f.rows {
			if match(p, d) {
				out = append(out, supabaseRow{Path: p, Data: d})
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
		w.Header().Set("Content-Range", fmt.Sprintf("*/%d", len(out)))
		if r.Method == http.MethodHead {
			return
		}
		if q.Get("limit") == "1" && len(out) > 1 {
			out = out[:1]
		}
		if out == nil {
			out = []supabaseRow{}
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func newSupabaseStore(t *testing.T, fake *fakePostgREST, withRealtime bool) (*Supabase, <-chan struct{}) {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/rest/", fake)

	var rt *supabase.RealtimeClient
	joined := make(chan struct{})
	if withRealtime {
		var (
			connMu sync.Mutex
			conn   *websocket.Conn
			topic  string
		)
		upgrader := websocket.Upgrader{}
		mux.HandleFunc("/realtime/v1/websocket", func(w http.ResponseWriter, r *http.Request) {
			c, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			for {
				var msg map[string]any
				if err := c.ReadJSON(&msg); err != nil {
					return
				}
				if msg["event"] == "phx_join" {
					connMu.Lock()
					conn, topic = c, msg["topic"].(string)
					connMu.Unlock()
					close(joined)
				}
			}
		})
		// runs under fake.mu, after the row change is applied
		fake.notify = func(path string) {
			connMu.Lock()
			defer connMu.Unlock()
			if conn == nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"topic": topic, "event": "postgres_changes",
				"payload": map[string]any{"data": map[string]any{
					"type": "UPDATE", "table": "documents",
					"record": map[string]any{"path": path},
				}},
			})
		}
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{URL: srv.URL, APIKey: "key"})
	require.NoError(t, err)
	if withRealtime {
		rt = supabase.NewRealtimeClient(srv.URL, "key")
	}
	store, err := NewSupabase(SupabaseConfig{Client: client, Realtime: rt})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, joined
}

func TestSupabase_CRUD(t *testing.T) {
	ctx := context.Background()
	store, _ := newSupabaseStore(t, newFakePostgREST(), false)

	var got testDoc
	assert.ErrorIs(t, store.Get(ctx, "items/a", &got), ErrNotFound)

	require.NoError(t, store.Set(ctx, "items/a", testDoc{Name: "a", Count: 1, Tag: "red"}))
	require.NoError(t, store.Set(ctx, "items/b", testDoc{Name: "b", Tag: "blue"}))
	require.NoError(t, store.Get(ctx, "items/a", &got))
	assert.Equal(t, "a", got.Name)

	ok, err := store.Exists(ctx, "items/b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Update(ctx, "items/a", map[string]any{"count": 9}))
	require.NoError(t, store.Get(ctx, "items/a", &got))
	assert.Equal(t, 9, got.Count)
	assert.ErrorIs(t, store.Update(ctx, "items/zz", map[string]any{"count": 1}), ErrNotFound)

	docs, err := store.Query(ctx, Query{Collection: "items", Where: []Filter{{Field: "tag", Value: "red"}}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	n, err := store.Count(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Delete(ctx, "items/b"))
	ok, err = store.Exists(ctx, "items/b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Health(ctx))
}

func TestSupabase_BatchUsesRPC(t *testing.T) {
	ctx := context.Background()
	fake := newFakePostgREST()
	store, _ := newSupabaseStore(t, fake, false)

	require.NoError(t, store.Batch().Set("items/a", testDoc{Name: "a"}).Set("logs/1", testDoc{}).Delete("items/x").Commit(ctx))
	assert.Equal(t, []string{"batch:3"}, fake.rpc)

	docs, err := store.List(ctx, "logs")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSupabase_WatchWithoutRealtime(t *testing.T) {
	store, _ := newSupabaseStore(t, newFakePostgREST(), false)
	_, err := store.Watch(context.Background(), "items", func([]Document, error) {})
	assert.ErrorIs(t, err, ErrWatchUnavailable)
}

func TestSupabase_WatchFollowsChanges(t *testing.T) {
	ctx := context.Background()
	store, joined := newSupabaseStore(t, newFakePostgREST(), true)

	rec := newRecorder()
	sub, err := store.Watch(ctx, "items", rec.fn)
	require.NoError(t, err)
	defer sub.Stop()
	rec.waitFor(t, 0)
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("realtime join not received")
	}

	require.NoError(t, store.Set(ctx, "items/a", testDoc{Name: "a"}))
	rec.waitFor(t, 1)
	require.NoError(t, store.Set(ctx, "items/b", testDoc{Name: "b"}))
	rec.waitFor(t, 2)
}
