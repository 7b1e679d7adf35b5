package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.JobFinished("ledger-reconcile", 250*time.Millisecond, nil)
	m.JobFinished("ledger-reconcile", time.Second, errors.New("drift"))
	m.JobFinished("outbox-retention", time.Millisecond, nil)
	m.CycleSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, outcome := range []string{outcomeSuccess, outcomeFailure} {
		run, err := findMetric(mfs, "ledger_cron_job_runs_total", map[string]string{"job": "ledger-reconcile", "outcome": outcome})
		require.NoError(t, err)
		require.Equal(t, 1.0, run.GetCounter().GetValue(), outcome)
	}

	took, err := findMetric(mfs, "ledger_cron_job_duration_seconds", map[string]string{"job": "ledger-reconcile"})
	require.NoError(t, err)
	require.EqualValues(t, 2, took.GetHistogram().GetSampleCount())
	require.InDelta(t, 1.25, took.GetHistogram().GetSampleSum(), 1e-9)

	last, err := findMetric(mfs, "ledger_cron_job_last_success_timestamp_seconds", map[string]string{"job": "outbox-retention"})
	require.NoError(t, err)
	require.Positive(t, last.GetGauge().GetValue())

	skipped := findMetricFamily(mfs, "ledger_cron_cycles_skipped_total")
	require.NotNil(t, skipped)
	require.Equal(t, 1.0, skipped.GetMetric()[0].GetCounter().GetValue())
}

func TestCronJobMetricsWithoutRegistererIsInert(t *testing.T) {
	var nilMetrics *CronJobMetrics
	require.NotPanics(t, func() {
		nilMetrics.JobFinished("x", time.Second, nil)
		nilMetrics.CycleSkipped()
		NewCronJobMetrics(nil).JobFinished("x", time.Second, errors.New("boom"))
		NewCronJobMetrics(nil).CycleSkipped()
	})
}
