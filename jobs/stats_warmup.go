package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/stats"
)

// DashboardWarmer computes and caches the stats dashboard.
type DashboardWarmer interface {
	Dashboard(ctx context.Context, w stats.Window) (stats.Dashboard, error)
}

// StatsWarmupJob pre-populates the stats cache so the first admin request is served hot.
type StatsWarmupJob struct {
	Stats   DashboardWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(statsSvc DashboardWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{
		Stats:   statsSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes stats warmup tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Stats == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Days <= 0 {
		payload.Days = stats.DefaultDays
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskStatsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskStatsWarmup).With(slog.Int("days", payload.Days))
	started := j.now()
	window := stats.TrailingDays(started, payload.Days)

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	dashboard, err := j.Stats.Dashboard(warmCtx, window)
	if err != nil {
		logger.Error("warm stats dashboard", slog.Any("error", err))
		return err
	}
	logger.Info("stats dashboard warmed",
		slog.Int("transactions", dashboard.Summary.Transactions),
		slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *StatsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
