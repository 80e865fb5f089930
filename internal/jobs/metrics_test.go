package jobmetrics

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("closing:recompute").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("closing:recompute").End(boom), boom)
	_ = m.Track("closing:recompute").End(errors.Join(errors.New("month 13"), asynq.SkipRetry))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("closing:recompute", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("closing:recompute", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("closing:recompute", StatusRejected)))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("closing:recompute")), 0.0)
}

func TestAddProcessedIgnoresEmptyRuns(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddProcessed("notification:purge", 0)
	m.AddProcessed("notification:purge", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.processed.WithLabelValues("notification:purge")))

	var none *Metrics
	none.AddProcessed("notification:purge", 1)
	assert.NoError(t, none.Track("notification:purge").End(nil))
}
