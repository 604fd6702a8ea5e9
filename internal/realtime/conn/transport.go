package conn

// Transport is the narrow contract Connection needs from an
// already-upgraded, binary-framed duplex connection. The HTTP-to-transport
// upgrade itself is out of scope here; callers hand Connection a Transport
// that is already past that step.
type Transport interface {
	// ReadMessage blocks for the next binary message. It returns an error
	// (any error) when the underlying connection is closed or fails.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one binary message. Safe to call only from the
	// connection's single writer goroutine.
	WriteMessage(data []byte) error
	// WritePing sends a transport-level ping control frame.
	WritePing() error
	// SetPongHandler registers fn to be invoked whenever the transport
	// observes a pong (or equivalent liveness signal) from the peer, so
	// the owning Connection can report it to its keep-alive monitor. Must
	// be called before Connection.Start.
	SetPongHandler(fn func())
	// Close closes the underlying connection. Safe to call more than once.
	Close() error
}
