package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrRealtimeClosed is reported to OnClose handlers when the socket drops.
var ErrRealtimeClosed = errors.New("realtime connection closed")

// RealtimeClient handles Supabase Realtime subscriptions over one socket.
type RealtimeClient struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	url      string
	apiKey   string
	conn     *websocket.Conn
	channels map[string]*Channel
	done     chan struct{}
	ref      int
	topicSeq int
	onClose  func(error)

	// HeartbeatInterval defaults to 30s.
	HeartbeatInterval time.Duration
}

// ChangeHandler receives postgres change events. Events for one channel are
// delivered in order from the read loop, so handlers must not block.
type ChangeHandler func(event ChangeEvent)

// ChangeEvent is one row change.
type ChangeEvent struct {
	Type      string         `json:"type"`
	Schema    string         `json:"schema"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

// Channel is one joined postgres_changes topic.
type Channel struct {
	client  *RealtimeClient
	topic   string
	joinRef string
	cfg     PostgresChangesConfig
	handler ChangeHandler
}

// PostgresChangesConfig configures a postgres changes subscription.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // e.g. "parent=eq.friends/u1/users_friends"
	// OnError is called if the server rejects the join.
	OnError func(error)
}

// NewRealtimeClient creates a new realtime client.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := supabaseURL
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[5:]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[4:]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?apikey=" + url.QueryEscape(apiKey) + "&vsn=1.0.0"

	return &RealtimeClient{
		url:               wsURL,
		apiKey:            apiKey,
		channels:          make(map[string]*Channel),
		HeartbeatInterval: 30 * time.Second,
	}
}

// OnClose registers a callback for unexpected disconnects.
func (r *RealtimeClient) OnClose(fn func(error)) {
	r.mu.Lock()
	r.onClose = fn
	r.mu.Unlock()
}

// Connected reports whether the socket is open.
func (r *RealtimeClient) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Connect establishes the WebSocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop(conn, r.done)
	go r.heartbeat(r.done)

	return nil
}

// Disconnect closes the WebSocket connection. OnClose is not called.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	conn := r.conn
	if conn == nil {
		r.mu.Unlock()
		return nil
	}
	close(r.done)
	r.conn = nil
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	r.writeMu.Lock()
	err := conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.writeMu.Unlock()
	conn.Close()
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// SubscribeToPostgresChanges joins a new channel for the given change feed.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, cfg PostgresChangesConfig, handler ChangeHandler) (*Channel, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	r.mu.Lock()
	if r.conn == nil {
		r.mu.Unlock()
		return nil, ErrRealtimeClosed
	}
	r.topicSeq++
	r.ref++
	ch := &Channel{
		client:  r,
		topic:   fmt.Sprintf("realtime:%s-%d", cfg.Table, r.topicSeq),
		joinRef: strconv.Itoa(r.ref),
		cfg:     cfg,
		handler: handler,
	}
	r.channels[ch.topic] = ch
	r.mu.Unlock()

	change := map[string]any{
		"event":  cfg.Event,
		"schema": cfg.Schema,
		"table":  cfg.Table,
	}
	if cfg.Filter != "" {
		change["filter"] = cfg.Filter
	}
	msg := map[string]any{
		"topic": ch.topic,
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{
				"broadcast":        map[string]any{"self": false},
				"presence":         map[string]any{"key": ""},
				"postgres_changes": []any{change},
			},
			"access_token": r.apiKey,
		},
		"ref":      ch.joinRef,
		"join_ref": ch.joinRef,
	}

	if err := r.write(ctx, msg); err != nil {
		r.mu.Lock()
		delete(r.channels, ch.topic)
		r.mu.Unlock()
		return nil, fmt.Errorf("send join: %w", err)
	}
	return ch, nil
}

// Topic returns the channel topic.
func (c *Channel) Topic() string {
	return c.topic
}

// Unsubscribe leaves the channel. No events are delivered afterwards.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	r := c.client
	r.mu.Lock()
	if _, ok := r.channels[c.topic]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.channels, c.topic)
	connected := r.conn != nil
	r.ref++
	ref := strconv.Itoa(r.ref)
	r.mu.Unlock()

	if !connected {
		return nil
	}
	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": c.joinRef,
	}
	if err := r.write(ctx, msg); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

func (r *RealtimeClient) write(ctx context.Context, msg any) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrRealtimeClosed
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	return conn.WriteJSON(msg)
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			r.closed(conn, done, err)
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		r.dispatch(&msg)
	}
}

// closed clears the connection after the read loop fails and reports it
// unless Disconnect already ran.
func (r *RealtimeClient) closed(conn *websocket.Conn, done chan struct{}, cause error) {
	r.mu.Lock()
	select {
	case <-done:
		r.mu.Unlock()
		return
	default:
	}
	close(done)
	if r.conn == conn {
		r.conn = nil
	}
	r.channels = make(map[string]*Channel)
	fn := r.onClose
	r.mu.Unlock()

	conn.Close()
	if fn != nil {
		fn(fmt.Errorf("%w: %v", ErrRealtimeClosed, cause))
	}
}

func (r *RealtimeClient) dispatch(msg *message) {
	r.mu.Lock()
	ch := r.channels[msg.Topic]
	r.mu.Unlock()
	if ch == nil {
		return
	}

	switch msg.Event {
	case "postgres_changes":
		var payload struct {
			Data ChangeEvent `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if ch.handler != nil {
			ch.handler(payload.Data)
		}
	case "phx_reply":
		var reply struct {
			Status   string         `json:"status"`
			Response map[string]any `json:"response"`
		}
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return
		}
		if reply.Status == "error" && ch.cfg.OnError != nil {
			ch.cfg.OnError(fmt.Errorf("join %s rejected: %v", ch.topic, reply.Response))
		}
	case "phx_error", "phx_close":
		if ch.cfg.OnError != nil {
			ch.cfg.OnError(fmt.Errorf("channel %s: %s", ch.topic, msg.Event))
		}
	}
}

func (r *RealtimeClient) heartbeat(done chan struct{}) {
	interval := r.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.ref++
			ref := strconv.Itoa(r.ref)
			r.mu.Unlock()
			msg := map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     ref,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = r.write(ctx, msg)
			cancel()
		}
	}
}
