package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDrain(3, 1, 20*time.Millisecond)
	c.RecordReload(12, 5*time.Millisecond)
	c.RecordQueueDepth(4)
	c.RecordSyncErrors("drain", "dispatch_failure")
	c.RecordSyncErrors("drain", "dispatch_failure")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.drainsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.drainDispatched))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.reloadsTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.syncErrors.WithLabelValues("drain", "dispatch_failure")))
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	require.Panics(t, func() { NewCollector(reg) }, "duplicate registration must panic via promauto")
}
