package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUpdate(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}
	encoded := EncodeUpdate(raw)

	typ, dec, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, Sync, typ)

	kind, err := DecodeSyncKind(dec)
	require.NoError(t, err)
	assert.Equal(t, SyncUpdate, kind)

	payload, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
	assert.Equal(t, 0, dec.Len())
}

func TestEncodeDecodeStep1Step2(t *testing.T) {
	sv := []byte("state-vector")
	typ, dec, err := Decode(EncodeStep1(sv))
	require.NoError(t, err)
	assert.Equal(t, Sync, typ)
	kind, err := DecodeSyncKind(dec)
	require.NoError(t, err)
	assert.Equal(t, SyncStep1, kind)
	got, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, sv, got)

	diff := []byte("diff-bytes")
	typ, dec, err = Decode(EncodeStep2(diff))
	require.NoError(t, err)
	assert.Equal(t, Sync, typ)
	kind, err = DecodeSyncKind(dec)
	require.NoError(t, err)
	assert.Equal(t, SyncStep2, kind)
	got, err = dec.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, diff, got)
}

func TestEncodeDecodeAwareness(t *testing.T) {
	upd := []byte("awareness-update")
	typ, dec, err := Decode(EncodeAwareness(upd))
	require.NoError(t, err)
	assert.Equal(t, Awareness, typ)
	got, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, upd, got)
}

func TestDecodeEmptyIsMalformed(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnknownTagIsMalformed(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(99)
	_, _, err := Decode(e.Bytes())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHedgedocTagDecodes(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(uint64(Hedgedoc))
	e.WriteBytes([]byte("ignored"))
	typ, dec, err := Decode(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Hedgedoc, typ)
	assert.Equal(t, 8, dec.Len())
}

// TestEncoderDecoderRoundTrip exercises the general Encoder/Decoder pair used by
// both SYNC and AWARENESS payloads, independent of message semantics.
func TestEncoderDecoderRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(1234567).WriteBytes([]byte("hello")).WriteUvarint(0)

	d := NewDecoder(e.Bytes())
	n, err := d.ReadUvarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1234567), n)

	b, err := d.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	zero, err := d.ReadUvarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), zero)
	assert.Equal(t, 0, d.Len())
}
