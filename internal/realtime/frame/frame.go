// Package frame implements the wire codec for the realtime protocol: a
// length-prefix-free stream of binary messages, each a variable-length
// integer message-type tag followed by a type-specific payload.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageType is the one-byte-or-more tag at the start of every frame.
type MessageType uint64

const (
	// Sync carries the SYNC sub-protocol (STEP1/STEP2/UPDATE).
	Sync MessageType = 0
	// Awareness carries a CRDT-encoded presence update.
	Awareness MessageType = 1
	// Hedgedoc is a reserved tag from the expanded dialect; receipt is
	// logged at debug and otherwise ignored.
	Hedgedoc MessageType = 2
)

// String renders a MessageType for logging and metric labels.
func (m MessageType) String() string {
	switch m {
	case Sync:
		return "sync"
	case Awareness:
		return "awareness"
	case Hedgedoc:
		return "hedgedoc"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(m))
	}
}

// SyncKind distinguishes the nested sub-frame inside a SYNC payload.
type SyncKind uint64

const (
	SyncStep1  SyncKind = 0
	SyncStep2  SyncKind = 1
	SyncUpdate SyncKind = 2
)

// ErrMalformed is returned when a frame's tag is absent or unknown.
var ErrMalformed = fmt.Errorf("frame: malformed")

// Decoder reads successive variable-length integers and byte strings from a
// frame payload. It is a thin positional cursor, not a parser for any
// specific sub-protocol — SYNC and AWARENESS payloads are opaque to it
// beyond their own leading discriminant.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps a byte slice for sequential reads.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// ReadUvarint reads a single LEB128-style variable-length unsigned integer.
func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, ErrMalformed
	}
	d.pos += n
	return v, nil
}

// ReadBytes reads a variable-length-prefixed byte string.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(len(d.buf)-d.pos) < n {
		return nil, ErrMalformed
	}
	out := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return out, nil
}

// Remaining returns every byte not yet consumed.
func (d *Decoder) Remaining() []byte {
	return d.buf[d.pos:]
}

// Len reports how many bytes are left unread.
func (d *Decoder) Len() int {
	return len(d.buf) - d.pos
}

// Encoder builds a frame payload by appending variable-length integers and
// byte strings in call order.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// WriteUvarint appends v in LEB128-style 7-bit-group encoding.
func (e *Encoder) WriteUvarint(v uint64) *Encoder {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf.Write(tmp[:n])
	return e
}

// WriteBytes appends a length-prefixed byte string.
func (e *Encoder) WriteBytes(b []byte) *Encoder {
	e.WriteUvarint(uint64(len(b)))
	e.buf.Write(b)
	return e
}

// Bytes returns the accumulated payload.
func (e *Encoder) Bytes() []byte {
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out
}

// Len reports the number of bytes written so far.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Decode reads the leading message-type tag and returns it along with a
// Decoder positioned just after it. The caller routes on the returned type.
func Decode(b []byte) (MessageType, *Decoder, error) {
	if len(b) == 0 {
		return 0, nil, ErrMalformed
	}
	d := NewDecoder(b)
	tag, err := d.ReadUvarint()
	if err != nil {
		return 0, nil, ErrMalformed
	}
	switch MessageType(tag) {
	case Sync, Awareness, Hedgedoc:
		return MessageType(tag), d, nil
	default:
		return 0, nil, ErrMalformed
	}
}

// EncodeUpdate wraps a raw CRDT update as a SYNC-UPDATE frame.
func EncodeUpdate(rawUpdate []byte) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(Sync))
	e.WriteUvarint(uint64(SyncUpdate))
	e.WriteBytes(rawUpdate)
	return e.Bytes()
}

// EncodeStep1 wraps a state vector as a SYNC-STEP1 frame (the initial sync
// request a peer sends to describe what it has already seen).
func EncodeStep1(stateVector []byte) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(Sync))
	e.WriteUvarint(uint64(SyncStep1))
	e.WriteBytes(stateVector)
	return e.Bytes()
}

// EncodeStep2 wraps a diff (the update a peer is missing) as a SYNC-STEP2
// frame, sent in response to a received STEP1.
func EncodeStep2(diff []byte) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(Sync))
	e.WriteUvarint(uint64(SyncStep2))
	e.WriteBytes(diff)
	return e.Bytes()
}

// EncodeAwareness wraps a CRDT-library-produced awareness update.
func EncodeAwareness(awarenessUpdate []byte) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(Awareness))
	e.WriteBytes(awarenessUpdate)
	return e.Bytes()
}

// DecodeSyncKind reads the SYNC sub-frame discriminant from d and returns
// the kind; d is left positioned at the sub-frame's payload.
func DecodeSyncKind(d *Decoder) (SyncKind, error) {
	kind, err := d.ReadUvarint()
	if err != nil {
		return 0, ErrMalformed
	}
	return SyncKind(kind), nil
}
