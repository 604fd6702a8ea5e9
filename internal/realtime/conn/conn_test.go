package conn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/notehub/collab/internal/realtime/frame"
	"github.com/notehub/collab/internal/realtime/keepalive"
)

type fakeTransport struct {
	mu       sync.Mutex
	incoming chan []byte
	written  [][]byte
	pings    int
	closed   bool
	onPong   func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan []byte, 16)}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	data, ok := <-f.incoming
	if !ok {
		return nil, assertClosedErr
	}
	return data, nil
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeTransport) WritePing() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) SetPongHandler(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPong = fn
}

// simulatePong invokes the installed pong handler, as the real transport's
// gorilla pong callback would on an incoming pong control frame.
func (f *fakeTransport) simulatePong() {
	f.mu.Lock()
	fn := f.onPong
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

func (f *fakeTransport) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

type assertClosedError struct{}

func (assertClosedError) Error() string { return "transport closed" }

var assertClosedErr = assertClosedError{}

type fakeHub struct {
	mu       sync.Mutex
	incoming []frame.MessageType
	removed  *Connection
	removals int
}

func (h *fakeHub) HandleIncoming(msgType frame.MessageType, dec *frame.Decoder, origin *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.incoming = append(h.incoming, msgType)
}

func (h *fakeHub) InitialFrames() ([]byte, []byte) {
	return frame.EncodeStep1(nil), frame.EncodeAwareness(nil)
}

func (h *fakeHub) Remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = c
	h.removals++
}

func TestConnectionSendInitialHandshake(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 30*time.Second)
	c.Start()
	defer c.Disconnect()

	c.SendInitial()
	require.Eventually(t, func() bool { return transport.writtenCount() == 2 }, time.Second, time.Millisecond)
}

func TestConnectionDispatchesInboundFramesInOrder(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 30*time.Second)
	c.Start()
	defer c.Disconnect()

	transport.incoming <- frame.EncodeUpdate([]byte("a"))
	transport.incoming <- frame.EncodeAwareness([]byte("{}"))

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.incoming) == 2
	}, time.Second, time.Millisecond)

	hub.mu.Lock()
	assert.Equal(t, frame.Sync, hub.incoming[0])
	assert.Equal(t, frame.Awareness, hub.incoming[1])
	hub.mu.Unlock()
}

func TestConnectionDisconnectIsIdempotentAndNotifiesHubOnce(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 30*time.Second)
	c.Start()

	c.Disconnect()
	c.Disconnect()
	c.Wait()

	assert.Same(t, c, hub.removed)
	assert.Equal(t, 1, hub.removals)
	assert.True(t, transport.closed)
}

func TestConnectionMarkSyncedIsMonotonic(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 30*time.Second)
	assert.False(t, c.IsSynced())
	c.MarkSynced()
	assert.True(t, c.IsSynced())
}

func TestConnectionSurvivesKeepAliveWhenTransportReportsPongs(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 10*time.Millisecond)
	c.Start()
	defer c.Disconnect()

	// Simulate the peer answering every ping for several keep-alive
	// intervals; without a pong observation reaching the monitor this
	// would force-close the connection after two intervals.
	for i := 0; i < 8; i++ {
		transport.simulatePong()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, keepalive.Healthy, c.keepalive.StateNow())
	assert.False(t, transport.closed)
}

func TestConnectionDisconnectsWhenPeerNeverPongs(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 10*time.Millisecond)
	c.Start()

	require.Eventually(t, func() bool { return transport.closed }, time.Second, time.Millisecond)
	assert.Same(t, c, hub.removed)
}

func TestConnectionMalformedFrameDoesNotClose(t *testing.T) {
	transport := newFakeTransport()
	hub := &fakeHub{}
	c := New(transport, nil, hub, zaptest.NewLogger(t), 30*time.Second)
	c.Start()
	defer c.Disconnect()

	transport.incoming <- []byte{}
	transport.incoming <- frame.EncodeUpdate([]byte("x"))

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.incoming) == 1
	}, time.Second, time.Millisecond)
}
