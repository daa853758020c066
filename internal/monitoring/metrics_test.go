package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOutcome("scored", time.Second)
		m.ObserveRetry()
		m.SetQueueDepth(3)
	})
}

func TestMetricsRecord(t *testing.T) {
	m := New()
	assert.NotPanics(t, func() {
		m.ObserveOutcome("scored", 250*time.Millisecond)
		m.ObserveOutcome("failed", time.Second)
		m.ObserveRetry()
		m.SetQueueDepth(7)
		m.SetQueueDepth(0)
	})
}
