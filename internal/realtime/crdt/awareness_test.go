package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwarenessApplyAddsAndUpdates(t *testing.T) {
	a := newAwareness()
	added, updated, removed, err := a.apply([]byte(`{"1":{"cursor":5}}`))
	require.NoError(t, err)
	assert.Equal(t, []ClientID{1}, added)
	assert.Empty(t, updated)
	assert.Empty(t, removed)

	added, updated, removed, err = a.apply([]byte(`{"1":{"cursor":9}}`))
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, []ClientID{1}, updated)
	assert.Empty(t, removed)
}

func TestAwarenessNullStateRemoves(t *testing.T) {
	a := newAwareness()
	_, _, _, err := a.apply([]byte(`{"1":{"cursor":5}}`))
	require.NoError(t, err)

	added, updated, removed, err := a.apply([]byte(`{"1":null}`))
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, updated)
	assert.Equal(t, []ClientID{1}, removed)
}

func TestAwarenessEncodeAll(t *testing.T) {
	a := newAwareness()
	_, _, _, err := a.apply([]byte(`{"1":{"x":1},"2":{"x":2}}`))
	require.NoError(t, err)

	raw := a.encode(nil)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out, 2)
}

func TestAwarenessRemove(t *testing.T) {
	a := newAwareness()
	_, _, _, err := a.apply([]byte(`{"7":{"x":1}}`))
	require.NoError(t, err)
	assert.True(t, a.remove(7))
	assert.False(t, a.remove(7))
}
