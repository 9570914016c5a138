package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorderWith(reg)

	rec.ObserveRun(RunRecord{
		Duration: 120 * time.Millisecond,
		Outcome:  "success",
		NodeVisits: map[string]int{
			"router":   2,
			"retrieve": 1,
		},
	})
	rec.ObserveRun(RunRecord{
		Outcome:       "rejected",
		RejectedScope: "caller",
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(rec.runsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.runsTotal.WithLabelValues("rejected")))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.nodeVisits.WithLabelValues("router")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.nodeVisits.WithLabelValues("retrieve")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.rejectionTotal.WithLabelValues("caller")))

	count, err := testutil.GatherAndCount(reg, "queryflow_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveRun(RunRecord{Outcome: "success"})
}
