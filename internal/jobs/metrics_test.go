package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("fees:late_fees").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("fees:late_fees").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("fees:late_fees", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("fees:late_fees", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("fees:late_fees")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("noop").End(nil))
	m.AddLateFees(3, 10)
	m.AddReminders("queued", 2)
	m.AddExpiredWaivers(1)
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddLateFees(2, 45.5)
	m.AddLateFees(0, 99)
	m.AddReminders("queued", 3)
	m.AddReminders("failed", 1)
	m.AddExpiredWaivers(4)

	require.Equal(t, 2.0, testutil.ToFloat64(m.lateFeeFees))
	require.Equal(t, 45.5, testutil.ToFloat64(m.lateFeeAmount))
	require.Equal(t, 3.0, testutil.ToFloat64(m.reminders.WithLabelValues("queued")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reminders.WithLabelValues("failed")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.expired))
}
