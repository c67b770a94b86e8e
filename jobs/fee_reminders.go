package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/madrasa-erp/madrasa/internal/fees"
	jobmetrics "github.com/madrasa-erp/madrasa/internal/jobs"
)

// TaskFeeReminders queues guardian reminders for upcoming and overdue fees.
const TaskFeeReminders = "fees:reminders"

// ReminderSource lists fees that need a reminder.
type ReminderSource interface {
	DueReminders(ctx context.Context, daysAhead int) ([]fees.Reminder, error)
}

// Contact is the guardian who receives reminders for a student.
type Contact struct {
	Name  string
	Email string
}

// ContactDirectory resolves the guardian contact of a student.
type ContactDirectory interface {
	GuardianContact(ctx context.Context, studentID int64) (Contact, bool, error)
}

// PGContactDirectory reads guardian contacts from PostgreSQL.
type PGContactDirectory struct {
	pool *pgxpool.Pool
}

// NewPGContactDirectory constructs the directory.
func NewPGContactDirectory(pool *pgxpool.Pool) *PGContactDirectory {
	return &PGContactDirectory{pool: pool}
}

// GuardianContact implements ContactDirectory.
func (d *PGContactDirectory) GuardianContact(ctx context.Context, studentID int64) (Contact, bool, error) {
	var c Contact
	err := d.pool.QueryRow(ctx, `
		SELECT guardian_name, email
		FROM guardian_contacts
		WHERE student_id = $1 AND email <> ''`, studentID).Scan(&c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, err
	}
	return c, true, nil
}

// ReminderJobConfig collects the reminder job dependencies.
type ReminderJobConfig struct {
	Source    ReminderSource
	Contacts  ContactDirectory
	Queue     Enqueuer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	DaysAhead int
	Currency  string
	Locale    string
	From      string
	// Location decides the run date used to deduplicate reminders.
	Location *time.Location
}

// ReminderJob turns outstanding balances into mail:send tasks.
type ReminderJob struct {
	source    ReminderSource
	contacts  ContactDirectory
	queue     Enqueuer
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
	daysAhead int
	currency  string
	from      string
	printer   *message.Printer
	loc       *time.Location
	clock     func() time.Time
}

// NewReminderJob constructs the job handler.
func NewReminderJob(cfg ReminderJobConfig) *ReminderJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		tag = language.English
	}
	return &ReminderJob{
		source:    cfg.Source,
		contacts:  cfg.Contacts,
		queue:     cfg.Queue,
		logger:    logger,
		metrics:   cfg.Metrics,
		daysAhead: cfg.DaysAhead,
		currency:  cfg.Currency,
		from:      cfg.From,
		printer:   message.NewPrinter(tag),
		loc:       loc,
		clock:     time.Now,
	}
}

// NewFeeRemindersTask creates the Asynq task.
func NewFeeRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskFeeReminders, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(2))
}

// Handle enqueues one email per reminder. Each email carries a task id derived
// from the fee and the run date, so a retried run does not mail twice.
func (j *ReminderJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.source == nil || j.contacts == nil || j.queue == nil {
		return errors.New("fee reminders: dependencies not configured")
	}
	tracker := j.metrics.Track(TaskFeeReminders)
	defer func() { err = tracker.End(err) }()

	reminders, err := j.source.DueReminders(ctx, j.daysAhead)
	if err != nil {
		j.logger.Error("list due reminders", slog.Any("error", err))
		return err
	}

	runDate := j.clock().In(j.loc).Format("2006-01-02")
	var queued, skipped, failed int
	for _, r := range reminders {
		contact, ok, err := j.contacts.GuardianContact(ctx, r.StudentID)
		if err != nil {
			failed++
			j.logger.Warn("lookup guardian contact", slog.Int64("student_id", r.StudentID), slog.Any("error", err))
			continue
		}
		if !ok {
			skipped++
			continue
		}
		task, err := NewSendEmailTask(j.render(r, contact))
		if err != nil {
			failed++
			continue
		}
		taskID := fmt.Sprintf("fee-reminder:%d:%s", r.FeeID, runDate)
		if _, err := j.queue.EnqueueContext(ctx, task, asynq.TaskID(taskID), asynq.Retention(48*time.Hour)); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				skipped++
				continue
			}
			failed++
			j.logger.Warn("enqueue reminder", slog.Int64("fee_id", r.FeeID), slog.Any("error", err))
			continue
		}
		queued++
	}

	j.metrics.AddReminders("queued", queued)
	j.metrics.AddReminders("failed", failed)
	j.logger.Info("fee reminders processed",
		slog.Int("due", len(reminders)),
		slog.Int("queued", queued),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed))
	if failed > 0 && queued == 0 && skipped == 0 {
		return fmt.Errorf("fee reminders: %d reminders failed", failed)
	}
	return nil
}

func (j *ReminderJob) render(r fees.Reminder, c Contact) SendEmailPayload {
	amount := j.printer.Sprintf("%v %v", j.currency, number.Decimal(r.Balance.InexactFloat64(), number.Scale(2)))
	due := r.DueDate.Format("2 January 2006")

	var subject, body string
	if r.DaysOverdue > 0 {
		subject = j.printer.Sprintf("Overdue fee %s", r.InvoiceNumber)
		body = j.printer.Sprintf("Dear %s,\n\nInvoice %s of %s was due on %s and is %d days overdue. Late fees may apply.\n",
			c.Name, r.InvoiceNumber, amount, due, r.DaysOverdue)
	} else {
		subject = j.printer.Sprintf("Upcoming fee %s", r.InvoiceNumber)
		body = j.printer.Sprintf("Dear %s,\n\nInvoice %s of %s is due on %s.\n",
			c.Name, r.InvoiceNumber, amount, due)
	}
	return SendEmailPayload{From: j.from, To: c.Email, Subject: subject, Body: body}
}
