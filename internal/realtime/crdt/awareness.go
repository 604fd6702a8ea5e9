package crdt

import (
	"encoding/json"
	"strconv"
	"sync"
)

// ClientID scopes one connected participant's presence entry.
type ClientID uint64

// awareness is an ephemeral per-client presence register. Unlike the
// document it is never persisted; it is encoded with the same
// variable-length wire primitives but its payload is plain JSON, which is
// sufficient for opaque cursor/selection/user-color blobs.
type awareness struct {
	mu     sync.Mutex
	states map[ClientID]json.RawMessage
}

func newAwareness() *awareness {
	return &awareness{states: make(map[ClientID]json.RawMessage)}
}

// apply merges an incoming {clientID: state|null} map. A null state
// removes the entry. Returns the added/updated/removed id sets so the
// caller can build a change event.
func (a *awareness) apply(raw []byte) (added, updated, removed []ClientID, err error) {
	var incoming map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &incoming); err != nil {
			return nil, nil, nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range incoming {
		id := parseClientID(key)
		_, existed := a.states[id]
		if isNullState(state) {
			if existed {
				delete(a.states, id)
				removed = append(removed, id)
			}
			continue
		}
		a.states[id] = state
		if existed {
			updated = append(updated, id)
		} else {
			added = append(added, id)
		}
	}
	return added, updated, removed, nil
}

// encode produces a {clientID: state} snapshot for the given ids, or for
// every known client when ids is empty.
func (a *awareness) encode(ids []ClientID) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]json.RawMessage)
	if len(ids) == 0 {
		for id, state := range a.states {
			out[formatClientID(id)] = state
		}
	} else {
		for _, id := range ids {
			if state, ok := a.states[id]; ok {
				out[formatClientID(id)] = state
			}
		}
	}
	b, _ := json.Marshal(out)
	return b
}

// remove clears a single client's entry (e.g. on disconnect) and reports
// whether it actually removed anything.
func (a *awareness) remove(id ClientID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.states[id]; !ok {
		return false
	}
	delete(a.states, id)
	return true
}

func isNullState(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func parseClientID(s string) ClientID {
	n, _ := strconv.ParseUint(s, 10, 64)
	return ClientID(n)
}

func formatClientID(id ClientID) string {
	return strconv.FormatUint(uint64(id), 10)
}
