package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) *dto.Metric {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return &m
}

func TestCountersIncrement(t *testing.T) {
	before := value(t, IngestFramesTotal).GetCounter().GetValue()
	IngestFramesTotal.Inc()
	assert.Equal(t, before+1, value(t, IngestFramesTotal).GetCounter().GetValue())

	ok := ReindexTotal.WithLabelValues("ok")
	before = value(t, ok).GetCounter().GetValue()
	ok.Inc()
	assert.Equal(t, before+1, value(t, ok).GetCounter().GetValue())
}

func TestGaugeSet(t *testing.T) {
	ExperimentPhase.Set(3)
	assert.Equal(t, float64(3), value(t, ExperimentPhase).GetGauge().GetValue())
}

func TestHistogramObserve(t *testing.T) {
	before := value(t, CommandLatencySeconds).GetHistogram().GetSampleCount()
	CommandLatencySeconds.Observe(0.002)
	assert.Equal(t, before+1, value(t, CommandLatencySeconds).GetHistogram().GetSampleCount())
}
