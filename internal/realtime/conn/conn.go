// Package conn implements the per-connection lifecycle: transport
// ownership, the sync handshake, serialized outbound writes, and
// sequential inbound dispatch. It is grounded on this codebase's
// WebSocket client pattern (register/readPump/writePump) generalized from
// a JSON chat protocol to the binary SYNC/AWARENESS frame protocol, with
// liveness delegated to the keepalive package instead of an inline ticker.
package conn

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/notehub/collab/internal/models"
	"github.com/notehub/collab/internal/realtime/frame"
	"github.com/notehub/collab/internal/realtime/keepalive"
)

// Hub is the narrow interface Connection needs from its parent note hub:
// enough to dispatch inbound frames and fetch the initial handshake
// payloads, without conn importing the hub package (which in turn depends
// on Connection).
type Hub interface {
	// HandleIncoming routes one decoded frame to the hub's CRDT/awareness
	// logic, attributing it to origin.
	HandleIncoming(msgType frame.MessageType, dec *frame.Decoder, origin *Connection)
	// InitialFrames returns the SYNC-STEP1 and AWARENESS-snapshot frames
	// sent to a newly connected client, in that order.
	InitialFrames() (step1, awareness []byte)
	// Remove is invoked once, from the connection's own disconnect path,
	// so the hub can drop it from its connection set.
	Remove(c *Connection)
}

const defaultSendBuffer = 64

// Connection owns one transport endpoint on behalf of one user in one
// note hub.
type Connection struct {
	transport Transport
	usr       *models.User
	hub       Hub
	logger    *zap.Logger

	keepalive *keepalive.Monitor

	synced atomic.Bool
	alive  atomic.Bool

	sendCh    chan []byte
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs a connection, installs its keep-alive monitor, and wires
// the transport's pong handler to that monitor. It does not start the
// read/write pumps (Start does), send the initial handshake frames, or
// register with the hub — callers (the admitter) do that explicitly once
// construction succeeds, so a failed admission never leaves a half-wired
// connection behind.
func New(transport Transport, user *models.User, hub Hub, logger *zap.Logger, pingInterval time.Duration) *Connection {
	c := &Connection{
		transport: transport,
		usr:       user,
		hub:       hub,
		logger:    logger,
		sendCh:    make(chan []byte, defaultSendBuffer),
	}
	c.alive.Store(true)
	c.keepalive = keepalive.New(pingInterval, c.sendPing, c.onKeepAliveTimeout)
	transport.SetPongHandler(c.keepalive.ObservePong)
	return c
}

// Start launches the read/write pumps and the keep-alive monitor. Call
// once, after the connection has been added to its hub.
func (c *Connection) Start() {
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
	c.keepalive.Start()
}

// SendInitial emits the hub-provided STEP1 and AWARENESS frames in order,
// per the protocol's fixed handshake opening.
func (c *Connection) SendInitial() {
	step1, awareness := c.hub.InitialFrames()
	c.send(step1)
	c.send(awareness)
}

// send enqueues data for the write pump. It is a no-op if the connection
// is no longer alive; enqueue failures (a full buffer, meaning the peer
// isn't draining) close the connection rather than block the caller.
func (c *Connection) send(data []byte) {
	if !c.alive.Load() {
		return
	}
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("connection send buffer full, closing")
		c.Disconnect()
	}
}

// Send is the public form of send, used by the hub's broadcast path.
func (c *Connection) Send(data []byte) {
	c.send(data)
}

// IsSynced reports whether the initial sync handshake has completed. Once
// true it never reverts, per the adapter's monotonic-sync contract.
func (c *Connection) IsSynced() bool {
	return c.synced.Load()
}

// User is a read-only accessor for the connection's resolved identity.
func (c *Connection) User() *models.User {
	return c.usr
}

// Disconnect idempotently tears the connection down: stops the keep-alive
// monitor, closes the transport, stops the write pump, and notifies the
// parent hub exactly once.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		c.keepalive.Stop()
		c.transport.Close()
		close(c.sendCh)
		c.hub.Remove(c)
	})
}

func (c *Connection) sendPing() error {
	return c.transport.WritePing()
}

func (c *Connection) onKeepAliveTimeout() {
	c.logger.Debug("keep-alive timeout, closing connection")
	c.Disconnect()
}

// writePump is this connection's single outbound writer; writes to the
// transport always happen in call order because they all flow through
// this one goroutine reading sendCh.
func (c *Connection) writePump() {
	defer c.wg.Done()
	for data := range c.sendCh {
		if err := c.transport.WriteMessage(data); err != nil {
			c.logger.Debug("transport write failed", zap.Error(err))
			c.Disconnect()
			return
		}
	}
}

// readPump is this connection's single inbound consumer: frames from this
// client are dispatched strictly in arrival order, never reordered,
// because handling happens inline in this one goroutine.
func (c *Connection) readPump() {
	defer c.wg.Done()
	defer c.Disconnect()

	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

func (c *Connection) dispatch(data []byte) {
	msgType, dec, err := frame.Decode(data)
	if err != nil {
		if errors.Is(err, frame.ErrMalformed) {
			c.logger.Debug("dropping malformed frame")
			return
		}
		c.logger.Debug("frame decode error", zap.Error(err))
		return
	}

	if msgType == frame.Hedgedoc {
		c.logger.Debug("ignoring reserved HEDGEDOC frame")
		return
	}

	c.handleWithRecover(msgType, dec)
}

// handleWithRecover catches any panic escaping the hub's handler so a
// single malformed or unexpected payload cannot take the connection (or
// the process) down — a HandlerFault stays local to this frame.
func (c *Connection) handleWithRecover(msgType frame.MessageType, dec *frame.Decoder) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic handling frame", zap.Any("panic", r))
		}
	}()
	c.hub.HandleIncoming(msgType, dec, c)
}

// MarkSynced is called by the hub once it determines this connection has
// completed its initial sync exchange (a STEP1 it applied produced no
// STEP2 response, or it has sent its own STEP2 successfully).
func (c *Connection) MarkSynced() {
	c.synced.Store(true)
}

// Wait blocks until both pumps have exited, for tests and graceful
// shutdown.
func (c *Connection) Wait() {
	c.wg.Wait()
}
