// Package hub implements the per-note rendezvous that owns a CRDT document
// and fans out its updates, adapted from this codebase's WebSocket Hub
// (register/unregister/broadcast over a client map) but re-specialized
// around one CRDT document instead of a generic pub/sub topic map, and
// around synchronous broadcast dispatch (the adapter's update events fire
// inline) instead of a channel-driven run loop.
package hub

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notehub/collab/internal/models"
	"github.com/notehub/collab/internal/realtime/conn"
	"github.com/notehub/collab/internal/realtime/crdt"
	"github.com/notehub/collab/internal/realtime/frame"
	"github.com/notehub/collab/pkg/metrics"
)

// SharedTextChannel is the fixed channel name the hub's CRDT document
// exposes its markdown body under.
const SharedTextChannel = "codemirror"

// Hub owns one note's CRDT document and awareness register, the set of
// connections currently attached to it, and re-broadcasts CRDT/awareness
// deltas among them.
type Hub struct {
	noteID models.NoteId
	doc    *crdt.Doc
	logger *zap.Logger

	onDestroy func(models.NoteId)

	mu          sync.Mutex
	connections map[*conn.Connection]crdt.ClientID
	closing     bool
	destroyed   bool

	metrics *metrics.Metrics
}

// SetMetrics attaches the process-wide metrics recorder to this hub,
// recording its own creation immediately. Safe to call at most once, right
// after construction; a hub with no metrics attached simply records
// nothing.
func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
	if m != nil {
		m.HubCreated()
	}
}

// New constructs a hub for noteID, seeded with initialContent, and wires
// the CRDT adapter's events to this hub's broadcast policy. onDestroy is
// invoked exactly once, after teardown completes, so the registry can
// deregister the hub.
func New(noteID models.NoteId, initialContent string, logger *zap.Logger, onDestroy func(models.NoteId)) *Hub {
	h := &Hub{
		noteID:      noteID,
		doc:         crdt.New(SharedTextChannel, initialContent),
		logger:      logger,
		onDestroy:   onDestroy,
		connections: make(map[*conn.Connection]crdt.ClientID),
	}
	h.doc.SubscribeUpdate(h.broadcastUpdate)
	h.doc.SubscribeAwareness(h.broadcastAwareness)
	return h
}

// NoteID returns the note this hub is bound to.
func (h *Hub) NoteID() models.NoteId {
	return h.noteID
}

// Connect adds a connection to the hub's set and assigns it a client id.
// On a closing hub it adds nothing and returns false; the admitter then
// closes the transport instead of registering the connection.
func (h *Hub) Connect(c *conn.Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.connections[c] = h.doc.NextClientID()
	return true
}

// IsClosing reports whether the hub has begun or finished teardown.
func (h *Hub) IsClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Remove drops a connection from the set. If the set becomes empty and
// the hub isn't already closing, it triggers destroy.
func (h *Hub) Remove(c *conn.Connection) {
	h.mu.Lock()
	clientID, ok := h.connections[c]
	if ok {
		delete(h.connections, c)
	}
	empty := len(h.connections) == 0
	closing := h.closing
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.ConnectionClosed()
	}
	h.doc.RemoveAwarenessClient(clientID, originKey(c))

	if empty && !closing {
		h.destroy()
	}
}

// InitialFrames builds the STEP1 + AWARENESS frames sent to a newly
// connected client.
func (h *Hub) InitialFrames() (step1, awareness []byte) {
	return frame.EncodeStep1(h.doc.StateVector()), h.doc.EncodeAwareness(nil)
}

// HandleIncoming routes one decoded frame from origin to the CRDT
// adapter, per the hub's dispatch contract.
func (h *Hub) HandleIncoming(msgType frame.MessageType, dec *frame.Decoder, origin *conn.Connection) {
	if h.metrics != nil {
		h.metrics.FrameReceived(msgType.String())
	}
	switch msgType {
	case frame.Sync:
		resp, err := h.doc.ApplySync(dec, originKey(origin))
		if err != nil {
			h.logger.Debug("malformed sync sub-frame", zap.Error(err))
			return
		}
		if resp != nil {
			origin.Send(resp)
		} else {
			origin.MarkSynced()
		}

	case frame.Awareness:
		raw, err := dec.ReadBytes()
		if err != nil {
			h.logger.Debug("malformed awareness frame", zap.Error(err))
			return
		}
		if err := h.doc.ApplyAwareness(raw, originKey(origin)); err != nil {
			h.logger.Debug("malformed awareness frame", zap.Error(err))
		}

	default:
		h.logger.Debug("ignoring unknown frame type", zap.Uint64("type", uint64(msgType)))
	}
}

// broadcastUpdate is the CRDT adapter's update-event handler: it encodes
// the raw update as a SYNC-UPDATE frame and fans it out to every synced
// connection except origin.
func (h *Hub) broadcastUpdate(rawUpdate []byte, origin string) {
	start := time.Now()
	encoded := frame.EncodeUpdate(rawUpdate)
	sent := 0
	for _, c := range h.snapshotConnections() {
		if originKey(c) == origin {
			continue
		}
		if !c.IsSynced() {
			continue
		}
		c.Send(encoded)
		sent++
	}
	if h.metrics != nil {
		h.metrics.ObserveBroadcastSeconds(time.Since(start).Seconds())
		for i := 0; i < sent; i++ {
			h.metrics.FrameSent(frame.Sync.String())
		}
	}
}

// broadcastAwareness is the CRDT adapter's awareness-event handler: it
// encodes a snapshot for the changed ids and fans it out to every
// connection, including origin — the CRDT reconciles idempotently so
// echoing is harmless and simplifies client bookkeeping.
func (h *Hub) broadcastAwareness(added, updated, removed []crdt.ClientID, origin string) {
	ids := make([]crdt.ClientID, 0, len(added)+len(updated)+len(removed))
	ids = append(ids, added...)
	ids = append(ids, updated...)
	ids = append(ids, removed...)
	encoded := h.doc.EncodeAwareness(ids)
	conns := h.snapshotConnections()
	for _, c := range conns {
		c.Send(encoded)
	}
	if h.metrics != nil {
		for range conns {
			h.metrics.FrameSent(frame.Awareness.String())
		}
	}
}

// snapshotConnections takes a copy of the connection set to iterate
// outside the lock, so a concurrent admission or disconnect can't
// deadlock or corrupt a broadcast in progress.
func (h *Hub) snapshotConnections() []*conn.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*conn.Connection, 0, len(h.connections))
	for c := range h.connections {
		out = append(out, c)
	}
	return out
}

// destroy tears the hub down exactly once: marks closing, releases the
// CRDT document, disconnects every remaining connection, and notifies the
// registry.
func (h *Hub) destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	h.closing = true
	remaining := make([]*conn.Connection, 0, len(h.connections))
	for c := range h.connections {
		remaining = append(remaining, c)
	}
	h.connections = make(map[*conn.Connection]crdt.ClientID)
	h.mu.Unlock()

	h.doc.Destroy()
	for _, c := range remaining {
		c.Disconnect()
	}
	if h.metrics != nil {
		h.metrics.HubClosed()
	}
	if h.onDestroy != nil {
		h.onDestroy(h.noteID)
	}
}

// Destroy forces teardown regardless of connection count (used by
// process shutdown).
func (h *Hub) Destroy() {
	h.destroy()
}

// SnapshotText returns the hub's current document text, for diagnostics
// and tests.
func (h *Hub) SnapshotText() string {
	return h.doc.SnapshotText(SharedTextChannel)
}

// Stats is a point-in-time summary of one hub's connection set, for the
// admin-only per-note stats endpoint.
type Stats struct {
	NoteID          models.NoteId
	ConnectionCount int
	SyncedCount     int
	ContentLength   int
}

// Stats reports this hub's current connection counts and document size.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	total := len(h.connections)
	conns := make([]*conn.Connection, 0, total)
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	synced := 0
	for _, c := range conns {
		if c.IsSynced() {
			synced++
		}
	}

	return Stats{
		NoteID:          h.noteID,
		ConnectionCount: total,
		SyncedCount:     synced,
		ContentLength:   len(h.SnapshotText()),
	}
}

// originKey derives the CRDT's opaque origin identity from a connection's
// pointer identity, so the adapter can suppress echo without the hub
// tracking client ids itself.
func originKey(c *conn.Connection) string {
	return fmt.Sprintf("%p", c)
}
