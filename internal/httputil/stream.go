package httputil

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPongTimeout  = 60 * time.Second
	streamPingInterval = 25 * time.Second
)

// ErrStreamClosed is returned by Send after the stream ended.
var ErrStreamClosed = errors.New("stream closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware in front of the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Stream is a server-to-client JSON WebSocket. Inbound frames other than
// control frames are discarded.
type Stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// StreamFrame wraps every message sent on a stream.
type StreamFrame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// UpgradeStream switches the request to a WebSocket. On failure the upgrader
// has already written the HTTP error. The stream context ends when the
// client disconnects or Close is called.
func UpgradeStream(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	s := &Stream{conn: conn, ctx: ctx, cancel: cancel}

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	})

	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Context is cancelled when the stream ends.
func (s *Stream) Context() context.Context {
	return s.ctx
}

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Send writes one data frame.
func (s *Stream) Send(frameType string, data any) error {
	return s.write(StreamFrame{Type: frameType, Data: data})
}

// SendError writes an error frame.
func (s *Stream) SendError(err error) error {
	return s.write(StreamFrame{Type: "error", Error: err.Error()})
}

func (s *Stream) write(frame StreamFrame) error {
	if s.ctx.Err() != nil {
		return ErrStreamClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.shutdown()
		return err
	}
	return nil
}

// Close sends a normal close frame and releases the connection.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) shutdown() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}

func (s *Stream) readLoop() {
	defer s.shutdown()
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.shutdown()
				return
			}
		}
	}
}
