package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg, time.Minute)

	r.OrdersAttempted.Inc()
	r.OrdersFilled.Inc()

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
}

func TestRecordLatency_SnapshotReturnsCountAndMean(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry(), time.Minute)

	r.RecordLatency(100)
	r.RecordLatency(200)

	count, mean := r.Snapshot()
	require.Equal(t, 2, count)
	require.Equal(t, 150.0, mean)
}

func TestRecordLatency_EvictsSamplesOutsideWindow(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry(), time.Millisecond)

	r.RecordLatency(50)
	time.Sleep(5 * time.Millisecond)
	r.RecordLatency(75)

	count, mean := r.Snapshot()
	require.Equal(t, 1, count)
	require.Equal(t, 75.0, mean)
}

func TestSnapshot_EmptyWindowReturnsZero(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry(), time.Minute)

	count, mean := r.Snapshot()
	require.Equal(t, 0, count)
	require.Equal(t, 0.0, mean)
}
