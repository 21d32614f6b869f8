package metrics_test

import (
	"testing"

	"github.com/2beens/gymsync/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_RegistersOnRegistry(t *testing.T) {
	m, reg := metrics.NewTestManagerAndRegistry()

	m.CounterMutations.WithLabelValues("add", "workout").Inc()
	m.GaugePendingQueueLen.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}

	queueLen, ok := byName["gymsync_test_pending_sync_queue_length"]
	require.True(t, ok)
	assert.Equal(t, 3.0, queueLen.GetMetric()[0].GetGauge().GetValue())

	mutations, ok := byName["gymsync_test_mutations"]
	require.True(t, ok)
	assert.Equal(t, 1.0, mutations.GetMetric()[0].GetCounter().GetValue())
}

func TestSetupPrometheus_ExtraCollectors(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_counter", Help: "extra"})
	reg := metrics.SetupPrometheus(extra, nil)
	extra.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "extra_counter" {
			found = true
		}
	}
	assert.True(t, found)
}
