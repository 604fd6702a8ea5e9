package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// NewMetrics registers against the global default registerer, so every
// case below shares one instance to avoid "duplicate metrics collector
// registration" panics across subtests.
func TestMetricsRecording(t *testing.T) {
	m := NewMetrics()

	t.Run("hub lifecycle", func(t *testing.T) {
		m.HubCreated()
		m.HubCreated()
		m.HubClosed()

		assert.Equal(t, float64(1), testutil.ToFloat64(m.hubsOpen))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.hubsCreatedTotal))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.hubsClosedTotal))
	})

	t.Run("connection lifecycle", func(t *testing.T) {
		m.ConnectionAdmitted()
		m.ConnectionAdmitted()
		m.ConnectionClosed()
		m.ConnectionDenied("session")
		m.ConnectionDenied("session")
		m.ConnectionDenied("permission")

		assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsOpen))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.connectionsAdmittedTotal))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.connectionsDeniedTotal.WithLabelValues("session")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsDeniedTotal.WithLabelValues("permission")))
	})

	t.Run("frame counters are labeled by type", func(t *testing.T) {
		m.FrameReceived("sync")
		m.FrameReceived("sync")
		m.FrameSent("awareness")

		assert.Equal(t, float64(2), testutil.ToFloat64(m.framesReceivedTotal.WithLabelValues("sync")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.framesSentTotal.WithLabelValues("awareness")))
	})

	t.Run("broadcast duration and keepalive timeouts", func(t *testing.T) {
		m.ObserveBroadcastSeconds(0.01)
		m.KeepAliveTimeout()

		assert.Equal(t, uint64(1), testutil.ToFloat64Histogram(m.broadcastDuration).SampleCount)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.keepAliveTimeouts))
	})

	t.Run("handler serves the prometheus exposition format", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/metrics", nil)
		m.Handler().ServeHTTP(rec, req)

		assert.Equal(t, 200, rec.Code)
		assert.Contains(t, rec.Body.String(), "collab_hubs_open")
	})
}
