package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	labels := map[string]string{LabelNetwork: "base-sepolia", LabelOutcome: "confirmed"}
	rec.IncCounter("confirmation", labels)
	rec.IncCounter("confirmation", labels)
	rec.ObserveLatency("confirmation", 1500*time.Millisecond, labels)

	got := testutil.ToFloat64(rec.counters.WithLabelValues("confirmation", "base-sepolia", "confirmed"))
	assert.Equal(t, float64(2), got)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))
}

func TestPrometheusRecorder_ReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	second, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	first.IncCounter("gate", map[string]string{LabelOutcome: "paid"})
	got := testutil.ToFloat64(second.counters.WithLabelValues("gate", "", "paid"))
	assert.Equal(t, float64(1), got)
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopRecorder{}, OrNoop(nil))
}
