package crdt

import (
	"fmt"
	"sync"

	"github.com/notehub/collab/internal/realtime/frame"
)

// Doc is the CRDT adapter bound to one note hub: a single shared-text
// field under a fixed channel name plus the awareness register for that
// document's participants. Callers never see RGA internals.
type Doc struct {
	mu sync.Mutex

	channel string
	nodeID  string // this replica's identity for ops it originates itself
	seq     uint64

	text      *rga
	history   []op // applied ops, in application order — the basis for state-vector diffs
	clock     map[string]uint64
	awareness *awareness

	destroyed bool
	events    eventBus
}

// New creates a document for channelName, seeding the shared-text field
// with initialContent inserted at position 0, attributed to this
// replica's own node id ("server").
func New(channelName, initialContent string) *Doc {
	d := &Doc{
		channel:   channelName,
		nodeID:    "server",
		text:      newRGA(),
		clock:     make(map[string]uint64),
		awareness: newAwareness(),
	}
	for _, ch := range initialContent {
		d.applyLocalInsert(ch)
	}
	return d
}

func (d *Doc) applyLocalInsert(ch rune) {
	after := d.text.lastVisibleBefore(visibleLen(d.text))
	d.seq++
	id := opID{Node: d.nodeID, Seq: d.seq}
	d.text.insert(id, after, ch)
	d.recordApplied(op{Kind: opInsert, ID: id, After: after, Ch: ch})
}

func visibleLen(r *rga) int {
	n := 0
	for _, node := range r.nodes {
		if !node.Deleted {
			n++
		}
	}
	return n
}

func (d *Doc) recordApplied(o op) {
	d.history = append(d.history, o)
	if o.ID.Seq > d.clock[o.ID.Node] {
		d.clock[o.ID.Node] = o.ID.Seq
	}
}

// StateVector returns the document's current state vector, encoded in
// this adapter's own wire format.
func (d *Doc) StateVector() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	sv := make(map[string]uint64, len(d.clock))
	for k, v := range d.clock {
		sv[k] = v
	}
	return encodeStateVector(sv)
}

// ApplySync handles one SYNC sub-frame (STEP1, STEP2, or UPDATE) already
// past its message-type tag. It returns the bytes of a STEP2 response
// frame when (and only when) applying a STEP1 produced a non-empty diff;
// STEP2 and UPDATE never produce a response, per the adapter contract.
func (d *Doc) ApplySync(dec *frame.Decoder, origin string) ([]byte, error) {
	kind, err := frame.DecodeSyncKind(dec)
	if err != nil {
		return nil, err
	}

	switch kind {
	case frame.SyncStep1:
		peerSVBytes, err := dec.ReadBytes()
		if err != nil {
			return nil, err
		}
		peerSV, err := decodeStateVector(peerSVBytes)
		if err != nil {
			return nil, err
		}
		diff := d.diffSince(peerSV)
		if len(diff) == 0 {
			return nil, nil
		}
		return frame.EncodeStep2(encodeOps(diff)), nil

	case frame.SyncStep2, frame.SyncUpdate:
		payload, err := dec.ReadBytes()
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			return nil, nil
		}
		ops, err := decodeOps(payload)
		if err != nil {
			return nil, err
		}
		if d.applyRemoteOps(ops) {
			d.events.publishUpdate(payload, origin)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("crdt: unknown sync kind %d", kind)
	}
}

// diffSince returns every applied op this replica has that peerSV doesn't,
// in application order so causal dependencies are satisfied when the peer
// replays them.
func (d *Doc) diffSince(peerSV map[string]uint64) []op {
	d.mu.Lock()
	defer d.mu.Unlock()

	var missing []op
	for _, o := range d.history {
		if o.ID.Seq > peerSV[o.ID.Node] {
			missing = append(missing, o)
		}
	}
	return missing
}

// applyRemoteOps applies a batch of ops (in order) and reports whether any
// of them actually mutated the document. Duplicate or out-of-order ops
// (parent not yet seen) are silently skipped — idempotent per R2.
func (d *Doc) applyRemoteOps(ops []op) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	mutated := false
	for _, o := range ops {
		if o.Kind == opInsert {
			if _, seen := d.text.index[o.ID]; seen {
				continue
			}
		}
		switch o.Kind {
		case opInsert:
			if d.text.insert(o.ID, o.After, o.Ch) {
				d.recordApplied(o)
				mutated = true
			}
		case opDelete:
			if d.text.delete(o.ID) {
				d.recordApplied(o)
				mutated = true
			}
		}
	}
	return mutated
}

// Insert applies a local edit (e.g. one originated by a connected client
// via a higher-level op, or injected for tests) at visible-text offset
// pos, attributed to originNode, and returns the raw update bytes to
// broadcast.
func (d *Doc) Insert(originNode string, pos int, text string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ops []op
	after := d.text.lastVisibleBefore(pos)
	seq := d.clock[originNode]
	for _, ch := range text {
		seq++
		id := opID{Node: originNode, Seq: seq}
		if d.text.insert(id, after, ch) {
			o := op{Kind: opInsert, ID: id, After: after, Ch: ch}
			d.recordApplied(o)
			ops = append(ops, o)
		}
		after = id
	}
	if len(ops) == 0 {
		return nil
	}
	raw := encodeOps(ops)
	d.events.publishUpdate(raw, originNode)
	return raw
}

// Delete tombstones the character at visible-text offset pos, attributed
// to originNode, and returns the raw update bytes to broadcast.
func (d *Doc) Delete(originNode string, pos int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.text.idAt(pos)
	if !ok || !d.text.delete(id) {
		return nil
	}
	o := op{Kind: opDelete, ID: id}
	d.recordApplied(o)
	raw := encodeOps([]op{o})
	d.events.publishUpdate(raw, originNode)
	return raw
}

// ApplyAwareness merges an incoming awareness payload (already stripped
// of its message-type tag and length prefix) attributed to origin, and
// publishes the resulting change event.
func (d *Doc) ApplyAwareness(raw []byte, origin string) error {
	added, updated, removed, err := d.awareness.apply(raw)
	if err != nil {
		return err
	}
	d.events.publishAwareness(added, updated, removed, origin)
	return nil
}

// RemoveAwarenessClient clears one client's presence (called when its
// connection disconnects) and publishes a removal event if it existed.
func (d *Doc) RemoveAwarenessClient(id ClientID, origin string) {
	if d.awareness.remove(id) {
		d.events.publishAwareness(nil, nil, []ClientID{id}, origin)
	}
}

// EncodeAwareness produces an AWARENESS frame for the given client ids
// (every known client if ids is empty).
func (d *Doc) EncodeAwareness(ids []ClientID) []byte {
	return frame.EncodeAwareness(d.awareness.encode(ids))
}

// SubscribeUpdate registers a handler invoked synchronously whenever a
// local mutation is applied.
func (d *Doc) SubscribeUpdate(h UpdateHandler) {
	d.events.subscribeUpdate(h)
}

// SubscribeAwareness registers a handler invoked synchronously whenever
// the awareness register changes.
func (d *Doc) SubscribeAwareness(h AwarenessHandler) {
	d.events.subscribeAwareness(h)
}

// SnapshotText returns the current flattened text of channelName, or ""
// if it doesn't match this document's single shared-text field.
func (d *Doc) SnapshotText(channelName string) string {
	if channelName != d.channel {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.text()
}

// NextClientID hands out the next numeric client id for a newly admitted
// connection, scoping its awareness entries.
func (d *Doc) NextClientID() ClientID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return ClientID(d.seq)
}

// Destroy releases the document's state. Idempotent per R3.
func (d *Doc) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.text = newRGA()
	d.history = nil
	d.clock = nil
	d.awareness = newAwareness()
}
