package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/madrasa-erp/madrasa/internal/shared"
)

const paymentIdempotencyModule = "fees.payments"

// Store defines the data access methods used inside and outside transactions.
type Store interface {
	NextInvoiceSequence(ctx context.Context, bucket string) (int, error)
	InsertFee(ctx context.Context, fee Fee) (Fee, error)
	GetFee(ctx context.Context, id int64) (Fee, error)
	LockFee(ctx context.Context, id int64) (Fee, error)
	UpdateFee(ctx context.Context, fee Fee) error
	ListFees(ctx context.Context, filter FeeFilter) ([]Fee, error)
	CountFees(ctx context.Context, filter FeeFilter) (int, error)
	ListOutstandingFees(ctx context.Context, dueBefore time.Time) ([]Fee, error)

	InsertWaiver(ctx context.Context, w FeeWaiver) (FeeWaiver, error)
	GetWaiver(ctx context.Context, id int64) (FeeWaiver, error)
	UpdateWaiverStatus(ctx context.Context, id int64, status WaiverStatus, reviewer int64, at time.Time) error
	ListStudentWaivers(ctx context.Context, studentID int64) ([]FeeWaiver, error)
	ExpireWaivers(ctx context.Context, asOf time.Time) (int64, error)
	ListWaiverApplications(ctx context.Context, feeID int64) ([]WaiverApplication, error)
	InsertWaiverApplication(ctx context.Context, app WaiverApplication) (WaiverApplication, error)

	ReplaceInstallments(ctx context.Context, feeID int64, plan []Installment) ([]Installment, error)
	ListInstallments(ctx context.Context, feeID int64) ([]Installment, error)
	UpdateInstallments(ctx context.Context, plan []Installment) error

	InsertPolicy(ctx context.Context, p LateFeePolicy) (LateFeePolicy, error)
	ListPolicies(ctx context.Context) ([]LateFeePolicy, error)
	ListActivePolicies(ctx context.Context, feeType string) ([]LateFeePolicy, error)
	ReplaceLateFeeCharges(ctx context.Context, feeID int64, charges []LateFeeCharge) error

	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	ListPayments(ctx context.Context, feeID int64) ([]Payment, error)
}

// RepositoryPort is a Store that can also run callbacks atomically.
type RepositoryPort interface {
	Store
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}

// StatsCache caches ledger statistics between mutations.
type StatsCache interface {
	Fetch(ctx context.Context, loader func(context.Context) (Statistics, error)) (Statistics, error)
	Invalidate(ctx context.Context) error
}

// IdempotencyGuard deduplicates retried payment submissions.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records billing mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig collects optional collaborators of Service.
type ServiceConfig struct {
	InvoicePrefix string
	Calendar      Calendar
	Cache         StatsCache
	Idempotency   IdempotencyGuard
	Audit         AuditPort
	Logger        *slog.Logger
	Location      *time.Location
	Clock         func() time.Time
}

// Service implements the fee billing operations.
type Service struct {
	repo        RepositoryPort
	prefix      string
	calendar    Calendar
	cache       StatsCache
	idempotency IdempotencyGuard
	audit       AuditPort
	logger      *slog.Logger
	loc         *time.Location
	clock       func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	s := &Service{
		repo:        repo,
		prefix:      NormalizePrefix(cfg.InvoicePrefix),
		calendar:    cfg.Calendar,
		cache:       cfg.Cache,
		idempotency: cfg.Idempotency,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		loc:         cfg.Location,
		clock:       cfg.Clock,
	}
	if s.calendar == nil {
		s.calendar = NoHolidays{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().In(s.loc)
}

func (s *Service) today() time.Time {
	return dateOnly(s.now())
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("fees: invalidate statistics cache", slog.Any("error", err))
	}
}

// record writes an audit entry. Failures are logged and never fail the
// mutation that triggered them.
func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actorID == 0 {
		actorID = shared.ActorFromContext(ctx)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("fees: audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// --- Fee Ledger ---

// Create bills a student and assigns the next invoice number of the current
// year-month bucket. Collisions are retried with the next sequence.
func (s *Service) Create(ctx context.Context, in CreateFeeInput) (Fee, error) {
	in.FeeType = strings.TrimSpace(in.FeeType)
	in.Amount = Round2(in.Amount)
	switch {
	case in.StudentID <= 0:
		return Fee{}, fmt.Errorf("%w: student required", ErrInvalidFee)
	case in.FeeType == "":
		return Fee{}, fmt.Errorf("%w: fee type required", ErrInvalidFee)
	case !in.Amount.IsPositive():
		return Fee{}, fmt.Errorf("%w: amount must be positive", ErrInvalidFee)
	case in.DueDate.IsZero():
		return Fee{}, fmt.Errorf("%w: due date required", ErrInvalidFee)
	}

	now := s.now()
	amount := in.Amount
	bucket := InvoiceBucket(now)

	for attempt := 0; attempt < maxInvoiceAttempts; attempt++ {
		var created Fee
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
			seq, err := tx.NextInvoiceSequence(ctx, bucket)
			if err != nil {
				return fmt.Errorf("fees: next invoice sequence: %w", err)
			}
			created, err = tx.InsertFee(ctx, Fee{
				StudentID:     in.StudentID,
				FeeType:       in.FeeType,
				Description:   in.Description,
				Amount:        amount,
				NetAmount:     amount,
				PaidAmount:    decimal.Zero,
				LateFeeTotal:  decimal.Zero,
				Status:        StatusUnpaid,
				DueDate:       dateOnly(in.DueDate),
				InvoiceNumber: NewInvoiceNumber(s.prefix, now, seq).String(),
				CreatedBy:     in.CreatedBy,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			return err
		})
		if errors.Is(err, errInvoiceCollision) {
			s.logger.Warn("fees: invoice number collision, retrying", slog.String("bucket", bucket), slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return Fee{}, err
		}
		s.invalidate(ctx)
		s.record(ctx, created.CreatedBy, "fees:create", "fee", created.ID, map[string]any{
			"invoice_number": created.InvoiceNumber,
			"amount":         FormatMoney(created.Amount),
		})
		s.logger.Info("fee created", slog.Int64("fee_id", created.ID), slog.String("invoice", created.InvoiceNumber))
		return created, nil
	}
	return Fee{}, ErrInvoiceSequenceExhausted
}

// Get returns a single fee.
func (s *Service) Get(ctx context.Context, id int64) (Fee, error) {
	return s.repo.GetFee(ctx, id)
}

// List returns fees matching filter together with the unpaged total.
func (s *Service) List(ctx context.Context, filter FeeFilter) ([]Fee, int, error) {
	items, err := s.repo.ListFees(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountFees(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// --- Waiver Engine ---

// CreateWaiver records a pending waiver request.
func (s *Service) CreateWaiver(ctx context.Context, in CreateWaiverInput) (FeeWaiver, error) {
	if in.AmountType == AmountFixed {
		in.Amount = Round2(in.Amount)
	}
	if err := validateWaiver(in); err != nil {
		return FeeWaiver{}, err
	}
	if in.FeeID != nil {
		fee, err := s.repo.GetFee(ctx, *in.FeeID)
		if err != nil {
			return FeeWaiver{}, err
		}
		if fee.StudentID != in.StudentID {
			return FeeWaiver{}, ErrWaiverStudentMismatch
		}
	}
	now := s.now()
	w, err := s.repo.InsertWaiver(ctx, FeeWaiver{
		StudentID:  in.StudentID,
		FeeID:      in.FeeID,
		WaiverType: in.WaiverType,
		AmountType: in.AmountType,
		Amount:     in.Amount,
		Status:     WaiverPending,
		ValidFrom:  dateOnly(in.ValidFrom),
		ValidUntil: dateOnly(in.ValidUntil),
		Reason:     in.Reason,
		CreatedBy:  in.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return FeeWaiver{}, err
	}
	s.record(ctx, w.CreatedBy, "waivers:create", "fee_waiver", w.ID, map[string]any{
		"student_id":  w.StudentID,
		"amount_type": string(w.AmountType),
		"amount":      w.Amount.String(),
	})
	return w, nil
}

// ApproveWaiver moves a pending waiver to approved.
func (s *Service) ApproveWaiver(ctx context.Context, id, reviewer int64) (FeeWaiver, error) {
	return s.reviewWaiver(ctx, id, reviewer, WaiverApproved)
}

// RejectWaiver moves a pending waiver to rejected.
func (s *Service) RejectWaiver(ctx context.Context, id, reviewer int64) (FeeWaiver, error) {
	return s.reviewWaiver(ctx, id, reviewer, WaiverRejected)
}

func (s *Service) reviewWaiver(ctx context.Context, id, reviewer int64, status WaiverStatus) (FeeWaiver, error) {
	var out FeeWaiver
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
		w, err := tx.GetWaiver(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != WaiverPending {
			return ErrWaiverReviewed
		}
		now := s.now()
		if err := tx.UpdateWaiverStatus(ctx, id, status, reviewer, now); err != nil {
			return err
		}
		w.Status = status
		w.ReviewedBy = &reviewer
		w.ReviewedAt = &now
		w.UpdatedAt = now
		out = w
		return nil
	})
	if err != nil {
		return FeeWaiver{}, err
	}
	s.record(ctx, reviewer, "waivers:"+string(status), "fee_waiver", id, nil)
	return out, nil
}

// ApplyWaiverToFee applies an approved, currently valid waiver to a fee.
// Each reduction is computed against the original fee amount and the net
// amount never drops below zero.
func (s *Service) ApplyWaiverToFee(ctx context.Context, feeID, waiverID int64) (Fee, error) {
	today := s.today()
	var out Fee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
		fee, err := tx.LockFee(ctx, feeID)
		if err != nil {
			return err
		}
		w, err := tx.GetWaiver(ctx, waiverID)
		if err != nil {
			return err
		}
		if !w.ActiveOn(today) {
			return ErrWaiverNotApplicable
		}
		if w.StudentID != fee.StudentID || (w.FeeID != nil && *w.FeeID != fee.ID) {
			return ErrWaiverStudentMismatch
		}
		applied, err := tx.ListWaiverApplications(ctx, fee.ID)
		if err != nil {
			return err
		}
		for _, a := range applied {
			if a.WaiverID == w.ID {
				return ErrWaiverApplied
			}
		}
		app, err := tx.InsertWaiverApplication(ctx, WaiverApplication{
			FeeID:     fee.ID,
			WaiverID:  w.ID,
			Reduction: w.Reduction(fee.Amount),
			AppliedAt: s.now(),
		})
		if err != nil {
			return err
		}
		applied = append(applied, app)
		fee.NetAmount = NetAmount(fee.Amount, applied)
		fee.Recompute()
		fee.UpdatedAt = s.now()
		if err := tx.UpdateFee(ctx, fee); err != nil {
			return err
		}
		out = fee
		return nil
	})
	if err != nil {
		return Fee{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, 0, "waivers:apply", "fee", feeID, map[string]any{
		"waiver_id":  waiverID,
		"net_amount": FormatMoney(out.NetAmount),
	})
	s.logger.Info("waiver applied",
		slog.Int64("fee_id", feeID),
		slog.Int64("waiver_id", waiverID),
		slog.String("net_amount", FormatMoney(out.NetAmount)))
	return out, nil
}

// GetApplicableWaivers returns the student's approved waivers valid today.
func (s *Service) GetApplicableWaivers(ctx context.Context, studentID int64) ([]FeeWaiver, error) {
	all, err := s.repo.ListStudentWaivers(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return FilterApplicable(all, s.today()), nil
}

// ExpireWaivers marks approved waivers whose window has closed as expired.
func (s *Service) ExpireWaivers(ctx context.Context) (int64, error) {
	return s.repo.ExpireWaivers(ctx, s.today())
}

// --- Installment Planner ---

// CreateInstallmentPlan replaces the fee's installment plan.
func (s *Service) CreateInstallmentPlan(ctx context.Context, feeID int64, in InstallmentPlanInput) ([]Installment, error) {
	if in.Count < 1 {
		return nil, ErrInvalidInstallmentCount
	}
	if in.StartDate.IsZero() {
		in.StartDate = s.today()
	}
	var out []Installment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
		fee, err := tx.LockFee(ctx, feeID)
		if err != nil {
			return err
		}
		plan, err := PlanInstallments(fee.ID, fee.Amount, in)
		if err != nil {
			return err
		}
		plan = AllocatePaid(plan, fee.PaidAmount)
		now := s.now()
		for i := range plan {
			plan[i].CreatedAt = now
		}
		out, err = tx.ReplaceInstallments(ctx, fee.ID, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, 0, "installments:plan", "fee", feeID, map[string]any{
		"count":     in.Count,
		"frequency": string(in.Frequency),
	})
	return out, nil
}

// ListInstallments returns the fee's installment plan ordered by number.
func (s *Service) ListInstallments(ctx context.Context, feeID int64) ([]Installment, error) {
	if _, err := s.repo.GetFee(ctx, feeID); err != nil {
		return nil, err
	}
	return s.repo.ListInstallments(ctx, feeID)
}

// --- Late Fee Calculator ---

// CreatePolicy stores a late fee policy. An empty fee type scopes the
// policy to every fee type.
func (s *Service) CreatePolicy(ctx context.Context, in CreatePolicyInput) (LateFeePolicy, error) {
	if in.FeeType != nil {
		ft := strings.TrimSpace(*in.FeeType)
		if ft == "" {
			in.FeeType = nil
		} else {
			in.FeeType = &ft
		}
	}
	in = normalizePolicyAmounts(in)
	if err := validatePolicy(in); err != nil {
		return LateFeePolicy{}, err
	}
	now := s.now()
	p, err := s.repo.InsertPolicy(ctx, LateFeePolicy{
		Name:            in.Name,
		FeeType:         in.FeeType,
		GracePeriodDays: in.GracePeriodDays,
		CalculationType: in.CalculationType,
		Amount:          in.Amount,
		MaxLateFee:      in.MaxLateFee,
		Compound:        in.Compound,
		ExcludeHolidays: in.ExcludeHolidays,
		IsActive:        in.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return LateFeePolicy{}, err
	}
	s.record(ctx, 0, "late_fee_policies:create", "late_fee_policy", p.ID, map[string]any{
		"calculation_type": string(p.CalculationType),
		"amount":           p.Amount.String(),
	})
	return p, nil
}

// ListPolicies returns every late fee policy.
func (s *Service) ListPolicies(ctx context.Context) ([]LateFeePolicy, error) {
	return s.repo.ListPolicies(ctx)
}

// CalculateAndApplyLateFees recomputes the fee's late charges from scratch.
// Re-running on the same day yields the same total.
func (s *Service) CalculateAndApplyLateFees(ctx context.Context, feeID int64) (Fee, error) {
	fee, err := s.applyLateFees(ctx, feeID)
	if err != nil {
		return Fee{}, err
	}
	s.invalidate(ctx)
	return fee, nil
}

func (s *Service) applyLateFees(ctx context.Context, feeID int64) (Fee, error) {
	today := s.today()
	var out Fee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
		fee, err := tx.LockFee(ctx, feeID)
		if err != nil {
			return err
		}
		if fee.Status == StatusPaid {
			out = fee
			return nil
		}
		policies, err := tx.ListActivePolicies(ctx, fee.FeeType)
		if err != nil {
			return err
		}
		evals, err := EvaluateLateFees(ctx, fee, policies, today, s.calendar)
		if err != nil {
			return err
		}
		now := s.now()
		total := decimal.Zero
		charges := make([]LateFeeCharge, 0, len(evals))
		for _, e := range evals {
			total = total.Add(e.Amount)
			charges = append(charges, LateFeeCharge{
				FeeID:          fee.ID,
				PolicyID:       e.Policy.ID,
				ChargeableDays: e.ChargeableDays,
				Amount:         e.Amount,
				CalculatedAt:   now,
			})
		}
		if err := tx.ReplaceLateFeeCharges(ctx, fee.ID, charges); err != nil {
			return err
		}
		fee.LateFeeTotal = Round2(total)
		fee.Recompute()
		fee.UpdatedAt = now
		if err := tx.UpdateFee(ctx, fee); err != nil {
			return err
		}
		out = fee
		return nil
	})
	return out, err
}

// ApplyOverdueLateFees processes every overdue, unpaid fee sequentially.
// A failing fee is logged and counted and the run continues.
func (s *Service) ApplyOverdueLateFees(ctx context.Context) (LateFeeRunResult, error) {
	result := LateFeeRunResult{Total: decimal.Zero}
	overdue, err := s.repo.ListOutstandingFees(ctx, s.today())
	if err != nil {
		return result, fmt.Errorf("fees: list overdue fees: %w", err)
	}
	for _, f := range overdue {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		updated, err := s.applyLateFees(ctx, f.ID)
		if err != nil {
			result.Failed++
			s.logger.Error("apply late fees", slog.Int64("fee_id", f.ID), slog.Any("error", err))
			continue
		}
		if updated.LateFeeTotal.IsPositive() {
			result.Charged++
			result.Total = result.Total.Add(updated.LateFeeTotal)
		}
	}
	if result.Processed > 0 {
		s.invalidate(ctx)
	}
	return result, nil
}

// --- Payment Recorder ---

// RecordPayment applies a payment to a fee and persists the audit record in
// the same transaction.
func (s *Service) RecordPayment(ctx context.Context, feeID int64, in RecordPaymentInput) (Payment, Fee, error) {
	in.Amount = Round2(in.Amount)
	if !in.Amount.IsPositive() {
		return Payment{}, Fee{}, ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = MethodCash
	}
	if !ValidMethod(in.Method) {
		return Payment{}, Fee{}, ErrInvalidMethod
	}
	if in.IdempotencyKey != "" {
		if err := shared.ValidateIdempotencyKey(in.IdempotencyKey); err != nil {
			return Payment{}, Fee{}, ErrInvalidKey
		}
		if s.idempotency == nil {
			return Payment{}, Fee{}, shared.ErrIdempotencyStoreMissing
		}
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, paymentIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Payment{}, Fee{}, ErrDuplicatePayment
			}
			return Payment{}, Fee{}, err
		}
	}

	now := s.now()
	if in.PaidAt.IsZero() {
		in.PaidAt = now
	}
	var (
		payment Payment
		fee     Fee
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		fee, err = tx.LockFee(ctx, feeID)
		if err != nil {
			return err
		}
		amount := in.Amount
		if err := applyPayment(&fee, amount); err != nil {
			return err
		}
		fee.UpdatedAt = now
		payment, err = tx.InsertPayment(ctx, Payment{
			FeeID:      fee.ID,
			Reference:  uuid.NewString(),
			Amount:     amount,
			Method:     in.Method,
			Note:       in.Note,
			ReceivedBy: in.ReceivedBy,
			PaidAt:     in.PaidAt,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateFee(ctx, fee); err != nil {
			return err
		}
		plan, err := tx.ListInstallments(ctx, fee.ID)
		if err != nil {
			return err
		}
		if len(plan) > 0 {
			return tx.UpdateInstallments(ctx, AllocatePaid(plan, fee.PaidAmount))
		}
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" {
			if derr := s.idempotency.Delete(ctx, in.IdempotencyKey); derr != nil {
				s.logger.Warn("fees: release idempotency key", slog.Any("error", derr))
			}
		}
		return Payment{}, Fee{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, payment.ReceivedBy, "payments:record", "fee", fee.ID, map[string]any{
		"reference": payment.Reference,
		"amount":    FormatMoney(payment.Amount),
		"method":    string(payment.Method),
		"status":    string(fee.Status),
	})
	s.logger.Info("payment recorded",
		slog.Int64("fee_id", fee.ID),
		slog.String("reference", payment.Reference),
		slog.String("amount", FormatMoney(payment.Amount)),
		slog.String("status", string(fee.Status)))
	return payment, fee, nil
}

// ListPayments returns the payments recorded against a fee.
func (s *Service) ListPayments(ctx context.Context, feeID int64) ([]Payment, error) {
	if _, err := s.repo.GetFee(ctx, feeID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, feeID)
}

// --- Statistics ---

// GetStatistics summarises the ledger, served from cache when available.
func (s *Service) GetStatistics(ctx context.Context) (Statistics, error) {
	if s.cache == nil {
		return s.loadStatistics(ctx)
	}
	return s.cache.Fetch(ctx, s.loadStatistics)
}

func (s *Service) loadStatistics(ctx context.Context) (Statistics, error) {
	all, err := s.repo.ListFees(ctx, FeeFilter{})
	if err != nil {
		return Statistics{}, err
	}
	return Summarize(all), nil
}

// --- Reminders ---

// DueReminders lists unpaid fees due within daysAhead days or already overdue.
func (s *Service) DueReminders(ctx context.Context, daysAhead int) ([]Reminder, error) {
	if daysAhead < 0 {
		daysAhead = 0
	}
	today := s.today()
	list, err := s.repo.ListOutstandingFees(ctx, today.AddDate(0, 0, daysAhead+1))
	if err != nil {
		return nil, err
	}
	out := make([]Reminder, 0, len(list))
	for _, f := range list {
		if !f.Balance().IsPositive() {
			continue
		}
		overdue := DaysBetween(f.DueDate, today)
		if overdue < 0 {
			overdue = 0
		}
		out = append(out, Reminder{
			FeeID:         f.ID,
			StudentID:     f.StudentID,
			InvoiceNumber: f.InvoiceNumber,
			DueDate:       f.DueDate,
			Balance:       f.Balance(),
			DaysOverdue:   overdue,
		})
	}
	return out, nil
}
