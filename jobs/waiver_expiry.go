package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/madrasa-erp/madrasa/internal/jobs"
)

// TaskWaiverExpiry marks lapsed waivers as expired.
const TaskWaiverExpiry = "fees:waiver_expiry"

// WaiverExpirer expires approved waivers past their validity window.
type WaiverExpirer interface {
	ExpireWaivers(ctx context.Context) (int64, error)
}

// WaiverExpiryJob runs the nightly waiver sweep.
type WaiverExpiryJob struct {
	Service WaiverExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewWaiverExpiryJob constructs the job handler.
func NewWaiverExpiryJob(service WaiverExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *WaiverExpiryJob {
	return &WaiverExpiryJob{Service: service, Logger: logger, Metrics: metrics}
}

// NewWaiverExpiryTask creates the Asynq task.
func NewWaiverExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskWaiverExpiry, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Handle executes the sweep.
func (j *WaiverExpiryJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("waiver expiry: service not configured")
	}
	tracker := j.Metrics.Track(TaskWaiverExpiry)
	defer func() { err = tracker.End(err) }()

	n, err := j.Service.ExpireWaivers(ctx)
	if err != nil {
		j.log().Error("expire waivers", slog.Any("error", err))
		return err
	}
	j.Metrics.AddExpiredWaivers(n)
	if n > 0 {
		j.log().Info("waivers expired", slog.Int64("count", n))
	}
	return nil
}

func (j *WaiverExpiryJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
