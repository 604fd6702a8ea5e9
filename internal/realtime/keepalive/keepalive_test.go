package keepalive

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorSendsPingAtInterval(t *testing.T) {
	var pings int32
	m := New(10*time.Millisecond, func() error {
		atomic.AddInt32(&pings, 1)
		return nil
	}, func() {})
	m.Start()
	defer m.Stop()

	time.Sleep(55 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&pings), int32(1))
}

func TestMonitorObservePongKeepsAlive(t *testing.T) {
	var closed int32
	m := New(10*time.Millisecond, func() error { return nil }, func() {
		atomic.AddInt32(&closed, 1)
	})
	m.Start()
	defer m.Stop()

	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		m.ObservePong()
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&closed))
}

func TestMonitorForceClosesOnMissedPong(t *testing.T) {
	done := make(chan struct{})
	m := New(10*time.Millisecond, func() error { return nil }, func() {
		close(done)
	})
	m.Start()
	defer m.Stop()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected onClose to fire after missed pong")
	}
}

func TestMonitorSendFailureClosesImmediately(t *testing.T) {
	done := make(chan struct{})
	m := New(10*time.Millisecond, func() error { return assertErr }, func() {
		close(done)
	})
	m.Start()
	defer m.Stop()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected onClose to fire after send failure")
	}
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "send failed" }
