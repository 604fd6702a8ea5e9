// Package crdt implements the convergent replicated text document and
// awareness register the note hub binds to. It ships its own small RGA
// (Replicated Growable Array) rather than a port of an external CRDT
// library: the wire bytes it produces are this implementation's own,
// opaque to everything above the adapter.
package crdt

import "fmt"

// opID uniquely identifies one character insertion, globally, by the
// originating replica's id and a per-replica monotonic sequence number.
type opID struct {
	Node string
	Seq  uint64
}

var zeroID = opID{}

// higherPriority reports whether a sorts before b when two inserts race at
// the same attachment point: higher sequence number wins, ties broken by
// node id so every replica resolves the race identically.
func higherPriority(a, b opID) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.Node > b.Node
}

type rgaNode struct {
	ID      opID
	After   opID // zeroID means "beginning of document"
	Ch      rune
	Deleted bool
}

// rga is a Replicated Growable Array for collaborative plain text. Not
// safe for concurrent use on its own; callers serialize access (Doc wraps
// it behind a mutex).
type rga struct {
	nodes []rgaNode
	index map[opID]int
}

func newRGA() *rga {
	return &rga{index: make(map[opID]int)}
}

// insert places a new character immediately causally after afterID. It
// returns false without mutating anything if id already exists (duplicate
// delivery of the same remote op must be a no-op, per R2).
func (r *rga) insert(id, after opID, ch rune) bool {
	if _, exists := r.index[id]; exists {
		return false
	}

	start := 0
	if after != zeroID {
		idx, ok := r.index[after]
		if !ok {
			// Parent not seen yet; caller is responsible for applying
			// updates in an order where dependencies precede dependents.
			return false
		}
		start = idx + 1
	}

	pos := start
	for pos < len(r.nodes) {
		cand := r.nodes[pos]
		if cand.After == after {
			if higherPriority(cand.ID, id) {
				pos++
				continue
			}
			break
		}
		if r.isDescendant(cand, after, start) {
			pos++
			continue
		}
		break
	}

	r.nodes = append(r.nodes, rgaNode{})
	copy(r.nodes[pos+1:], r.nodes[pos:])
	r.nodes[pos] = rgaNode{ID: id, After: after, Ch: ch}
	r.reindexFrom(pos)
	return true
}

// isDescendant reports whether cand's ancestor chain reaches root without
// first leaving the [boundary, len(nodes)) region — i.e. whether cand sits
// inside the subtree that was already attached under root.
func (r *rga) isDescendant(cand rgaNode, root opID, boundary int) bool {
	cur := cand
	for {
		if cur.After == root {
			return true
		}
		if cur.After == zeroID {
			return false
		}
		idx, ok := r.index[cur.After]
		if !ok || idx < boundary {
			return false
		}
		cur = r.nodes[idx]
	}
}

func (r *rga) reindexFrom(from int) {
	for i := from; i < len(r.nodes); i++ {
		r.index[r.nodes[i].ID] = i
	}
}

// delete tombstones id. Returns false if id is unknown or already deleted.
func (r *rga) delete(id opID) bool {
	idx, ok := r.index[id]
	if !ok || r.nodes[idx].Deleted {
		return false
	}
	r.nodes[idx].Deleted = true
	return true
}

// text renders the current visible content, skipping tombstones.
func (r *rga) text() string {
	out := make([]rune, 0, len(r.nodes))
	for _, n := range r.nodes {
		if !n.Deleted {
			out = append(out, n.Ch)
		}
	}
	return string(out)
}

// idAt returns the opID of the node currently at visible-text offset pos
// (ignoring tombstones), or zeroID with ok=false if pos is at the end.
func (r *rga) idAt(pos int) (opID, bool) {
	seen := 0
	for _, n := range r.nodes {
		if n.Deleted {
			continue
		}
		if seen == pos {
			return n.ID, true
		}
		seen++
	}
	return zeroID, false
}

// lastVisibleBefore returns the opID to attach after when inserting at
// visible-text offset pos (zeroID for offset 0).
func (r *rga) lastVisibleBefore(pos int) opID {
	if pos <= 0 {
		return zeroID
	}
	id, ok := r.idAt(pos - 1)
	if !ok {
		// pos is at or past the end; attach after the last visible node.
		for i := len(r.nodes) - 1; i >= 0; i-- {
			if !r.nodes[i].Deleted {
				return r.nodes[i].ID
			}
		}
		return zeroID
	}
	return id
}

func (o opID) String() string {
	return fmt.Sprintf("%s:%d", o.Node, o.Seq)
}
