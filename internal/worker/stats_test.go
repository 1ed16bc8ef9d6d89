package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/metrics"
)

type fakeSource struct {
	calls  atomic.Int32
	counts domain.AggregateCounts
	err    error
}

func (f *fakeSource) AggregateCounts(context.Context) (*domain.AggregateCounts, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	c := f.counts
	return &c, nil
}

func newTestWorker(source CountsSource, interval time.Duration) *StatsWorker {
	return NewStatsWorker(source, &config.WorkerConfig{Enabled: true, Interval: interval}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunOncePublishesGauges(t *testing.T) {
	source := &fakeSource{counts: domain.AggregateCounts{TotalPlayers: 15, TotalUpdates: 40, AvgLevel: 250, ActiveNow: 4}}
	w := newTestWorker(source, time.Minute)

	w.RunOnce(context.Background())

	assert.Equal(t, 15.0, testutil.ToFloat64(metrics.PlayersTotal))
	assert.Equal(t, 40.0, testutil.ToFloat64(metrics.SnapshotsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ActivePlayers))
	assert.Equal(t, 250.0, testutil.ToFloat64(metrics.AverageActiveLevel))
}

func TestRunOnceKeepsGaugesOnError(t *testing.T) {
	metrics.PlayersTotal.Set(7)
	w := newTestWorker(&fakeSource{err: errors.New("database is locked")}, time.Minute)

	w.RunOnce(context.Background())

	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.PlayersTotal))
}

func TestStartStop(t *testing.T) {
	source := &fakeSource{}
	w := newTestWorker(source, 10*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	// A second start is a no-op
	require.NoError(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return source.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}
