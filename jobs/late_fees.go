package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/madrasa-erp/madrasa/internal/fees"
	jobmetrics "github.com/madrasa-erp/madrasa/internal/jobs"
)

// TaskLateFees recalculates late fees on overdue balances.
const TaskLateFees = "fees:late_fees"

// LateFeePayload narrows a run to one fee. A zero FeeID sweeps every overdue fee.
type LateFeePayload struct {
	FeeID int64 `json:"fee_id,omitempty"`
}

// LateFeeService is the subset of the fee service the job drives.
type LateFeeService interface {
	ApplyOverdueLateFees(ctx context.Context) (fees.LateFeeRunResult, error)
	CalculateAndApplyLateFees(ctx context.Context, feeID int64) (fees.Fee, error)
}

// LateFeeJob applies late fees on a schedule.
type LateFeeJob struct {
	Service LateFeeService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLateFeeJob constructs the job handler.
func NewLateFeeJob(service LateFeeService, logger *slog.Logger, metrics *jobmetrics.Metrics) *LateFeeJob {
	return &LateFeeJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// NewLateFeeTask creates an Asynq task for a late fee run.
func NewLateFeeTask(feeID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LateFeePayload{FeeID: feeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLateFees, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// Handle executes the late fee job.
func (j *LateFeeJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("late fees: service not configured")
	}
	var payload LateFeePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskLateFees)
	defer func() { err = tracker.End(err) }()
	start := j.now()

	if payload.FeeID > 0 {
		fee, err := j.Service.CalculateAndApplyLateFees(ctx, payload.FeeID)
		if err != nil {
			j.log().Error("apply late fees", slog.Int64("fee_id", payload.FeeID), slog.Any("error", err))
			return err
		}
		if fee.LateFeeTotal.IsPositive() {
			j.Metrics.AddLateFees(1, fee.LateFeeTotal.InexactFloat64())
		}
		j.log().Info("late fees applied", slog.Int64("fee_id", fee.ID), slog.String("late_fee_total", fees.FormatMoney(fee.LateFeeTotal)))
		return nil
	}

	result, err := j.Service.ApplyOverdueLateFees(ctx)
	if err != nil {
		j.log().Error("late fee run", slog.Any("error", err))
		return err
	}
	j.Metrics.AddLateFees(result.Charged, result.Total.InexactFloat64())
	j.log().Info("late fee run completed",
		slog.Int("processed", result.Processed),
		slog.Int("charged", result.Charged),
		slog.Int("failed", result.Failed),
		slog.String("total", fees.FormatMoney(result.Total)),
		slog.Duration("duration", j.now().Sub(start)))
	if result.Failed > 0 && result.Failed == result.Processed {
		return errors.New("late fees: every overdue fee failed")
	}
	return nil
}

func (j *LateFeeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LateFeeJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
