// Package registry implements the process-wide note-id-to-hub map,
// adapted from this codebase's service-registry pattern (an RWMutex-guarded
// map keyed by an opaque identifier) but replacing its round-robin lookup
// with get-or-create semantics, coalesced with golang.org/x/sync/singleflight
// so concurrent admissions for the same note trigger exactly one initial
// content load and exactly one hub construction.
package registry

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/notehub/collab/internal/models"
	"github.com/notehub/collab/internal/realtime/hub"
	"github.com/notehub/collab/pkg/metrics"
)

// ContentLoader fetches a note's current saved content, invoked at most
// once per hub lifetime.
type ContentLoader func() (string, error)

// Registry maps NoteId to the single live Hub for that note.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	hubs  map[models.NoteId]*hub.Hub
	group singleflight.Group

	metrics *metrics.Metrics
}

// New constructs an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		hubs:   make(map[models.NoteId]*hub.Hub),
	}
}

// SetMetrics attaches the process-wide metrics recorder; every hub this
// registry creates afterward reports through it.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Get performs a non-creating lookup.
func (r *Registry) Get(noteID models.NoteId) (*hub.Hub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hubs[noteID]
	if !ok || h.IsClosing() {
		return nil, false
	}
	return h, true
}

// GetOrCreate returns the live hub for noteID, creating one via load if
// none exists. Concurrent callers for the same noteID coalesce onto a
// single creation: load runs exactly once, and a failure is returned to
// every waiter without leaving a partially-constructed hub registered.
func (r *Registry) GetOrCreate(noteID models.NoteId, load ContentLoader) (*hub.Hub, error) {
	if h, ok := r.Get(noteID); ok {
		return h, nil
	}

	v, err, _ := r.group.Do(string(noteID), func() (interface{}, error) {
		// Re-check under the single-flight key: another goroutine may have
		// finished creating the hub between our Get above and acquiring
		// this in-flight slot.
		if h, ok := r.Get(noteID); ok {
			return h, nil
		}

		content, err := load()
		if err != nil {
			return nil, err
		}

		h := hub.New(noteID, content, r.logger, r.remove)
		if r.metrics != nil {
			h.SetMetrics(r.metrics)
		}

		r.mu.Lock()
		r.hubs[noteID] = h
		r.mu.Unlock()

		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*hub.Hub), nil
}

// remove deregisters a hub once it has destroyed itself. It is the
// on-destroy callback passed to every hub this registry creates.
func (r *Registry) remove(noteID models.NoteId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hubs, noteID)
}

// OpenHubCount reports how many hubs are currently registered, for the
// operational stats endpoint.
func (r *Registry) OpenHubCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hubs)
}

// TotalConnections sums the connection count across every registered hub,
// for the operational stats endpoint.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	hubs := make([]*hub.Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.mu.RUnlock()

	total := 0
	for _, h := range hubs {
		total += h.Stats().ConnectionCount
	}
	return total
}

// Stats returns the live per-note stats for noteID, or false if no hub is
// currently registered for it.
func (r *Registry) Stats(noteID models.NoteId) (hub.Stats, bool) {
	h, ok := r.Get(noteID)
	if !ok {
		return hub.Stats{}, false
	}
	return h.Stats(), true
}

// Shutdown forcibly destroys every live hub, for graceful process exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	hubs := make([]*hub.Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.mu.RUnlock()

	for _, h := range hubs {
		h.Destroy()
	}
}
