package conn

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport adapts a *websocket.Conn to the Transport interface, grounded
// on this codebase's existing gorilla/websocket client-handling pattern
// (write deadline set before every write, read deadline extended on every
// pong, ping sent as a control frame rather than an application message).
type WSTransport struct {
	conn   *websocket.Conn
	closed atomic.Bool
	onPong func()
}

// NewWSTransport wraps conn for binary-only traffic and installs a pong
// handler that resets the read deadline, matching the deadline-on-pong
// discipline used elsewhere in this codebase. The handler also forwards
// to whatever callback SetPongHandler installs, so the owning Connection
// learns the peer is still alive.
func NewWSTransport(wsConn *websocket.Conn, readTimeout time.Duration) *WSTransport {
	t := &WSTransport{conn: wsConn}
	wsConn.SetReadDeadline(time.Now().Add(readTimeout))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(readTimeout))
		if t.onPong != nil {
			t.onPong()
		}
		return nil
	})
	return t
}

// SetPongHandler installs fn as the pong callback. Called once, from
// Connection.New, before the read pump starts; no concurrent access to
// onPong is possible at that point.
func (t *WSTransport) SetPongHandler(fn func()) {
	t.onPong = fn
}

func (t *WSTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *WSTransport) WriteMessage(data []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *WSTransport) WritePing() error {
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *WSTransport) Close() error {
	t.closed.Store(true)
	return t.conn.Close()
}

// IsOpen reports whether Close has not yet been called on this transport,
// used by the admitter to abort registration if the peer vanished during
// the admitter's own suspension points.
func (t *WSTransport) IsOpen() bool {
	return !t.closed.Load()
}
