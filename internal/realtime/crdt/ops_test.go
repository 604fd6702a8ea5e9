package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOpsRoundTrip(t *testing.T) {
	ops := []op{
		{Kind: opInsert, ID: opID{"a", 1}, After: zeroID, Ch: 'h'},
		{Kind: opInsert, ID: opID{"a", 2}, After: opID{"a", 1}, Ch: 'i'},
		{Kind: opDelete, ID: opID{"a", 1}},
	}
	raw := encodeOps(ops)
	got, err := decodeOps(raw)
	require.NoError(t, err)
	assert.Equal(t, ops, got)
}

func TestEncodeDecodeEmptyOps(t *testing.T) {
	raw := encodeOps(nil)
	got, err := decodeOps(raw)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodeDecodeStateVectorRoundTrip(t *testing.T) {
	sv := map[string]uint64{"a": 5, "b": 12}
	raw := encodeStateVector(sv)
	got, err := decodeStateVector(raw)
	require.NoError(t, err)
	assert.Equal(t, sv, got)
}

func TestDecodeStateVectorEmpty(t *testing.T) {
	got, err := decodeStateVector(encodeStateVector(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}
