package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Processed.WithLabelValues("score").Add(3)
	m.Failed.WithLabelValues("score").Inc()
	m.InFlight.WithLabelValues("enrich").Set(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Processed.WithLabelValues("score")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failed.WithLabelValues("score")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InFlight.WithLabelValues("enrich")))

	n, err := testutil.GatherAndCount(reg, "venturesignal_items_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(nil)
		NewMetrics(nil)
	})
}
