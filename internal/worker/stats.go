package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/metrics"
)

// CountsSource computes the store aggregates
type CountsSource interface {
	AggregateCounts(ctx context.Context) (*domain.AggregateCounts, error)
}

// StatsWorker periodically copies the store aggregates into Prometheus gauges
type StatsWorker struct {
	source  CountsSource
	config  *config.WorkerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(source CountsSource, cfg *config.WorkerConfig, logger *slog.Logger) *StatsWorker {
	return &StatsWorker{
		source: source,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background refresh
func (w *StatsWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("stats worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh
func (w *StatsWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("stats worker stopped")
	return nil
}

// run is the main worker loop
func (w *StatsWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// Populate the gauges before the first tick
	w.refresh(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// refresh reads the aggregates once and publishes them
func (w *StatsWorker) refresh(ctx context.Context) {
	startTime := time.Now()

	counts, err := w.source.AggregateCounts(ctx)
	if err != nil {
		w.logger.Error("failed to refresh stats gauges", "error", err)
		return
	}

	metrics.PlayersTotal.Set(float64(counts.TotalPlayers))
	metrics.SnapshotsTotal.Set(float64(counts.TotalUpdates))
	metrics.ActivePlayers.Set(float64(counts.ActiveNow))
	metrics.AverageActiveLevel.Set(float64(counts.AvgLevel))

	w.logger.Debug("stats gauges refreshed",
		"duration", time.Since(startTime),
		"total_players", counts.TotalPlayers,
		"total_updates", counts.TotalUpdates,
		"active_now", counts.ActiveNow,
	)
}

// IsRunning returns whether the worker is currently running
func (w *StatsWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh (useful for manual triggers)
func (w *StatsWorker) RunOnce(ctx context.Context) {
	w.refresh(ctx)
}
