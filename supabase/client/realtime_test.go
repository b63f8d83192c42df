package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRealtime answers joins and pushes one change per join.
func fakeRealtime(t *testing.T, joined chan<- map[string]any, closeAfterJoin bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/v1/websocket", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["event"] != "phx_join" {
				continue
			}
			joined <- msg
			topic := msg["topic"]
			_ = conn.WriteJSON(map[string]any{
				"topic": topic, "event": "phx_reply", "ref": msg["ref"],
				"payload": map[string]any{"status": "ok", "response": map[string]any{}},
			})
			for i, typ := range []string{"INSERT", "DELETE"} {
				_ = conn.WriteJSON(map[string]any{
					"topic": topic, "event": "postgres_changes", "ref": nil,
					"payload": map[string]any{"data": map[string]any{
						"type": typ, "schema": "public", "table": "documents",
						"record": map[string]any{"path": "c/" + string(rune('a'+i))},
					}},
				})
			}
			if closeAfterJoin {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRealtime_SubscribeDeliversInOrder(t *testing.T) {
	joined := make(chan map[string]any, 1)
	srv := fakeRealtime(t, joined, false)

	rt := NewRealtimeClient(srv.URL, "key")
	require.True(t, strings.HasPrefix(rt.url, "ws://"))
	ctx := context.Background()
	require.NoError(t, rt.Connect(ctx))
	defer rt.Disconnect()

	events := make(chan ChangeEvent, 4)
	ch, err := rt.SubscribeToPostgresChanges(ctx, PostgresChangesConfig{
		Table:  "documents",
		Filter: "parent=eq.c",
	}, func(e ChangeEvent) { events <- e })
	require.NoError(t, err)

	join := <-joined
	raw, _ := json.Marshal(join["payload"])
	assert.Contains(t, string(raw), `"filter":"parent=eq.c"`)
	assert.Contains(t, string(raw), `"schema":"public"`)

	first := <-events
	second := <-events
	assert.Equal(t, "INSERT", first.Type)
	assert.Equal(t, "c/a", first.Record["path"])
	assert.Equal(t, "DELETE", second.Type)

	require.NoError(t, ch.Unsubscribe(ctx))
	require.NoError(t, ch.Unsubscribe(ctx))
}

func TestRealtime_OnCloseAfterServerDrop(t *testing.T) {
	joined := make(chan map[string]any, 1)
	srv := fakeRealtime(t, joined, true)

	rt := NewRealtimeClient(srv.URL, "key")
	closed := make(chan error, 1)
	rt.OnClose(func(err error) { closed <- err })
	ctx := context.Background()
	require.NoError(t, rt.Connect(ctx))

	_, err := rt.SubscribeToPostgresChanges(ctx, PostgresChangesConfig{Table: "documents"}, func(ChangeEvent) {})
	require.NoError(t, err)

	select {
	case err := <-closed:
		assert.True(t, errors.Is(err, ErrRealtimeClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	assert.False(t, rt.Connected())

	_, err = rt.SubscribeToPostgresChanges(ctx, PostgresChangesConfig{Table: "documents"}, func(ChangeEvent) {})
	assert.ErrorIs(t, err, ErrRealtimeClosed)
}

func TestRealtime_DisconnectDoesNotReportClose(t *testing.T) {
	joined := make(chan map[string]any, 1)
	srv := fakeRealtime(t, joined, false)

	rt := NewRealtimeClient(srv.URL, "key")
	called := make(chan struct{}, 1)
	rt.OnClose(func(error) { called <- struct{}{} })
	require.NoError(t, rt.Connect(context.Background()))
	require.NoError(t, rt.Disconnect())
	require.NoError(t, rt.Disconnect())

	select {
	case <-called:
		t.Fatal("OnClose called after Disconnect")
	case <-time.After(100 * time.Millisecond):
	}
}
