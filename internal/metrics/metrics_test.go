package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveOperation("add_device", nil)
	m.ObserveOperation("add_device", nil)
	m.ObserveOperation("add_device", errors.New("quota"))
	m.AddDanglingSkipped(3)
	m.AddDanglingSkipped(0)
	m.AddPruned(RefStream, 2)
	m.AddPruned(RefServer, 0)
	m.AddOwnStreamsDeleted(4)
	m.ObserveSweep(150 * time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operations.WithLabelValues("add_device", ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("add_device", ResultError)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.danglingSkipped), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.referencesPruned.WithLabelValues(RefStream)), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.ownStreamsFreed), 0)

	n, err := testutil.GatherAndCount(reg, "subscriber_reconcile_sweep_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("op", nil)
		m.AddDanglingSkipped(1)
		m.AddPruned(RefStream, 1)
		m.AddOwnStreamsDeleted(1)
		m.ObserveSweep(time.Second)
	})
}

func TestMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
