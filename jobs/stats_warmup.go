package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/madrasa-erp/madrasa/internal/fees"
	jobmetrics "github.com/madrasa-erp/madrasa/internal/jobs"
)

// TaskStatsWarmup pre-populates the fee statistics cache.
const TaskStatsWarmup = "fees:stats_warmup"

// StatisticsSource returns (and caches) fee statistics.
type StatisticsSource interface {
	GetStatistics(ctx context.Context) (fees.Statistics, error)
}

// StatsWarmupJob keeps the dashboard statistics warm between cache expiries.
type StatsWarmupJob struct {
	Service StatisticsSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(service StatisticsSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{Service: service, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second}
}

// NewStatsWarmupTask creates the Asynq task.
func NewStatsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskStatsWarmup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// Handle processes warmup tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("stats warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStatsWarmup)
	defer func() { err = tracker.End(err) }()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := j.logger()
	stats, err := j.Service.GetStatistics(ctx)
	if err != nil {
		logger.Error("warm statistics", slog.Any("error", err))
		return err
	}
	logger.Debug("statistics warmed",
		slog.String("total_fees", fees.FormatMoney(stats.TotalFees)),
		slog.Int("unpaid", stats.UnpaidCount))
	return nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}
