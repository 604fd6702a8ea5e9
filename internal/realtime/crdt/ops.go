package crdt

import (
	"github.com/notehub/collab/internal/realtime/frame"
)

type opKind uint64

const (
	opInsert opKind = 0
	opDelete opKind = 1
)

type op struct {
	Kind  opKind
	ID    opID
	After opID // insert only
	Ch    rune // insert only
}

func encodeOpID(e *frame.Encoder, id opID) {
	e.WriteBytes([]byte(id.Node))
	e.WriteUvarint(id.Seq)
}

func decodeOpID(d *frame.Decoder) (opID, error) {
	node, err := d.ReadBytes()
	if err != nil {
		return opID{}, err
	}
	seq, err := d.ReadUvarint()
	if err != nil {
		return opID{}, err
	}
	return opID{Node: string(node), Seq: seq}, nil
}

// encodeOps serializes a batch of ops into this adapter's own raw-update
// wire format: a count followed by each op's fields. This is the payload
// carried inside a SYNC-UPDATE or SYNC-STEP2 sub-frame; the Frame Codec
// itself treats it as an opaque byte string.
func encodeOps(ops []op) []byte {
	e := frame.NewEncoder()
	e.WriteUvarint(uint64(len(ops)))
	for _, o := range ops {
		e.WriteUvarint(uint64(o.Kind))
		encodeOpID(e, o.ID)
		switch o.Kind {
		case opInsert:
			encodeOpID(e, o.After)
			e.WriteUvarint(uint64(o.Ch))
		case opDelete:
		}
	}
	return e.Bytes()
}

func decodeOps(raw []byte) ([]op, error) {
	d := frame.NewDecoder(raw)
	count, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ops := make([]op, 0, count)
	for i := uint64(0); i < count; i++ {
		kindRaw, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		id, err := decodeOpID(d)
		if err != nil {
			return nil, err
		}
		o := op{Kind: opKind(kindRaw), ID: id}
		if opKind(kindRaw) == opInsert {
			after, err := decodeOpID(d)
			if err != nil {
				return nil, err
			}
			ch, err := d.ReadUvarint()
			if err != nil {
				return nil, err
			}
			o.After = after
			o.Ch = rune(ch)
		}
		ops = append(ops, o)
	}
	return ops, nil
}

// encodeStateVector serializes a clock (node -> highest seq seen) into
// this adapter's own state-vector wire format.
func encodeStateVector(sv map[string]uint64) []byte {
	e := frame.NewEncoder()
	e.WriteUvarint(uint64(len(sv)))
	for node, seq := range sv {
		e.WriteBytes([]byte(node))
		e.WriteUvarint(seq)
	}
	return e.Bytes()
}

func decodeStateVector(raw []byte) (map[string]uint64, error) {
	if len(raw) == 0 {
		return map[string]uint64{}, nil
	}
	d := frame.NewDecoder(raw)
	count, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	sv := make(map[string]uint64, count)
	for i := uint64(0); i < count; i++ {
		node, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		seq, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		sv[string(node)] = seq
	}
	return sv, nil
}
