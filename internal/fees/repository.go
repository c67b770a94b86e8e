package fees

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/madrasa-erp/madrasa/internal/platform/db"
)

const invoiceNumberConstraint = "fees_invoice_number_key"

// errInvoiceCollision signals that a generated invoice number already exists.
var errInvoiceCollision = errors.New("fees: invoice number collision")

// Repository provides PostgreSQL backed persistence for fees.
type Repository struct {
	pool *pgxpool.Pool
	q    db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithTx runs fn in a repeatable-read transaction with a tx-bound store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{pool: r.pool, q: tx})
	})
}

// --- Fees ---

const feeColumns = `id, student_id, fee_type, description, amount, net_amount, paid_amount,
	late_fee_total, status, due_date, invoice_number, created_by, created_at, updated_at`

// NextInvoiceSequence atomically increments the counter of bucket. It runs on
// the pool, outside any transaction, so a rolled back insert still consumes
// its number and the retry moves on to the next one.
func (r *Repository) NextInvoiceSequence(ctx context.Context, bucket string) (int, error) {
	var seq int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO invoice_sequences (bucket, last_value)
		VALUES ($1, 1)
		ON CONFLICT (bucket) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`, bucket).Scan(&seq)
	return seq, err
}

// InsertFee persists a new fee.
func (r *Repository) InsertFee(ctx context.Context, fee Fee) (Fee, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO fees (
			student_id, fee_type, description, amount, net_amount, paid_amount,
			late_fee_total, status, due_date, invoice_number, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		fee.StudentID, fee.FeeType, fee.Description, fee.Amount, fee.NetAmount, fee.PaidAmount,
		fee.LateFeeTotal, string(fee.Status), fee.DueDate, fee.InvoiceNumber, fee.CreatedBy,
		fee.CreatedAt, fee.UpdatedAt,
	).Scan(&fee.ID)
	if err != nil {
		if db.IsUniqueViolation(err, invoiceNumberConstraint) {
			return Fee{}, errInvoiceCollision
		}
		return Fee{}, err
	}
	return fee, nil
}

// GetFee retrieves a fee by ID.
func (r *Repository) GetFee(ctx context.Context, id int64) (Fee, error) {
	return r.getFee(ctx, `SELECT `+feeColumns+` FROM fees WHERE id = $1`, id)
}

// LockFee retrieves a fee and locks its row until the transaction ends.
func (r *Repository) LockFee(ctx context.Context, id int64) (Fee, error) {
	return r.getFee(ctx, `SELECT `+feeColumns+` FROM fees WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) getFee(ctx context.Context, query string, id int64) (Fee, error) {
	fee, err := scanFee(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Fee{}, ErrFeeNotFound
	}
	return fee, err
}

// UpdateFee writes the mutable balance columns of a fee.
func (r *Repository) UpdateFee(ctx context.Context, fee Fee) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE fees
		SET net_amount = $2, paid_amount = $3, late_fee_total = $4, status = $5, updated_at = $6
		WHERE id = $1`,
		fee.ID, fee.NetAmount, fee.PaidAmount, fee.LateFeeTotal, string(fee.Status), fee.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFeeNotFound
	}
	return nil
}

func feeWhere(filter FeeFilter) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}
	argNum := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.StudentID > 0 {
		where += fmt.Sprintf(" AND student_id = $%d", argNum)
		args = append(args, filter.StudentID)
		argNum++
	}
	if filter.FeeType != "" {
		where += fmt.Sprintf(" AND fee_type = $%d", argNum)
		args = append(args, filter.FeeType)
	}
	return where, args
}

// ListFees returns fees with optional filtering. A zero limit returns all rows.
func (r *Repository) ListFees(ctx context.Context, filter FeeFilter) ([]Fee, error) {
	where, args := feeWhere(filter)
	query := `SELECT ` + feeColumns + ` FROM fees` + where + ` ORDER BY due_date, id`
	argNum := len(args) + 1
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}
	return r.queryFees(ctx, query, args...)
}

// CountFees counts fees matching filter, ignoring paging.
func (r *Repository) CountFees(ctx context.Context, filter FeeFilter) (int, error) {
	where, args := feeWhere(filter)
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM fees`+where, args...).Scan(&n)
	return n, err
}

// ListOutstandingFees returns fees not fully paid that fell due before dueBefore.
func (r *Repository) ListOutstandingFees(ctx context.Context, dueBefore time.Time) ([]Fee, error) {
	return r.queryFees(ctx, `SELECT `+feeColumns+` FROM fees
		WHERE status <> 'paid' AND due_date < $1
		ORDER BY due_date, id`, dueBefore)
}

func (r *Repository) queryFees(ctx context.Context, query string, args ...any) ([]Fee, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fee
	for rows.Next() {
		fee, err := scanFee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fee)
	}
	return out, rows.Err()
}

func scanFee(row pgx.Row) (Fee, error) {
	var f Fee
	var status string
	var amount, net, paid, late pgtype.Numeric
	err := row.Scan(
		&f.ID, &f.StudentID, &f.FeeType, &f.Description, &amount, &net, &paid,
		&late, &status, &f.DueDate, &f.InvoiceNumber, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return Fee{}, err
	}
	f.Status = FeeStatus(status)
	f.Amount = numericToDecimal(amount)
	f.NetAmount = numericToDecimal(net)
	f.PaidAmount = numericToDecimal(paid)
	f.LateFeeTotal = numericToDecimal(late)
	return f, nil
}

// --- Waivers ---

const waiverColumns = `id, student_id, fee_id, waiver_type, amount_type, amount, status,
	valid_from, valid_until, reason, created_by, reviewed_by, reviewed_at, created_at, updated_at`

// InsertWaiver persists a waiver.
func (r *Repository) InsertWaiver(ctx context.Context, w FeeWaiver) (FeeWaiver, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO fee_waivers (
			student_id, fee_id, waiver_type, amount_type, amount, status,
			valid_from, valid_until, reason, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		w.StudentID, w.FeeID, string(w.WaiverType), string(w.AmountType), w.Amount, string(w.Status),
		w.ValidFrom, w.ValidUntil, w.Reason, w.CreatedBy, w.CreatedAt, w.UpdatedAt,
	).Scan(&w.ID)
	return w, err
}

// GetWaiver retrieves a waiver by ID.
func (r *Repository) GetWaiver(ctx context.Context, id int64) (FeeWaiver, error) {
	w, err := scanWaiver(r.q.QueryRow(ctx, `SELECT `+waiverColumns+` FROM fee_waivers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return FeeWaiver{}, ErrWaiverNotFound
	}
	return w, err
}

// UpdateWaiverStatus records a review decision.
func (r *Repository) UpdateWaiverStatus(ctx context.Context, id int64, status WaiverStatus, reviewer int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE fee_waivers
		SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
		WHERE id = $1`, id, string(status), reviewer, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWaiverNotFound
	}
	return nil
}

// ListStudentWaivers returns every waiver of a student.
func (r *Repository) ListStudentWaivers(ctx context.Context, studentID int64) ([]FeeWaiver, error) {
	rows, err := r.q.Query(ctx, `SELECT `+waiverColumns+` FROM fee_waivers
		WHERE student_id = $1 ORDER BY valid_from, id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeeWaiver
	for rows.Next() {
		w, err := scanWaiver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ExpireWaivers marks approved waivers ending before asOf as expired.
func (r *Repository) ExpireWaivers(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE fee_waivers SET status = 'expired', updated_at = NOW()
		WHERE status = 'approved' AND valid_until < $1`, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListWaiverApplications returns the waivers applied to a fee.
func (r *Repository) ListWaiverApplications(ctx context.Context, feeID int64) ([]WaiverApplication, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, fee_id, waiver_id, reduction, applied_at
		FROM fee_waiver_applications WHERE fee_id = $1 ORDER BY id`, feeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WaiverApplication
	for rows.Next() {
		var a WaiverApplication
		var reduction pgtype.Numeric
		if err := rows.Scan(&a.ID, &a.FeeID, &a.WaiverID, &reduction, &a.AppliedAt); err != nil {
			return nil, err
		}
		a.Reduction = numericToDecimal(reduction)
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertWaiverApplication records a waiver applied to a fee.
func (r *Repository) InsertWaiverApplication(ctx context.Context, app WaiverApplication) (WaiverApplication, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO fee_waiver_applications (fee_id, waiver_id, reduction, applied_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		app.FeeID, app.WaiverID, app.Reduction, app.AppliedAt).Scan(&app.ID)
	if db.IsUniqueViolation(err, "") {
		return WaiverApplication{}, ErrWaiverApplied
	}
	return app, err
}

func scanWaiver(row pgx.Row) (FeeWaiver, error) {
	var w FeeWaiver
	var waiverType, amountType, status string
	var amount pgtype.Numeric
	var reviewedBy pgtype.Int8
	var reviewedAt pgtype.Timestamptz
	err := row.Scan(
		&w.ID, &w.StudentID, &w.FeeID, &waiverType, &amountType, &amount, &status,
		&w.ValidFrom, &w.ValidUntil, &w.Reason, &w.CreatedBy, &reviewedBy, &reviewedAt,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return FeeWaiver{}, err
	}
	w.WaiverType = WaiverType(waiverType)
	w.AmountType = AmountType(amountType)
	w.Status = WaiverStatus(status)
	w.Amount = numericToDecimal(amount)
	if reviewedBy.Valid {
		w.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		w.ReviewedAt = &reviewedAt.Time
	}
	return w, nil
}

// --- Installments ---

// ReplaceInstallments deletes the fee's plan and inserts plan in its place.
func (r *Repository) ReplaceInstallments(ctx context.Context, feeID int64, plan []Installment) ([]Installment, error) {
	if _, err := r.q.Exec(ctx, `DELETE FROM fee_installments WHERE fee_id = $1`, feeID); err != nil {
		return nil, err
	}
	out := make([]Installment, 0, len(plan))
	for _, inst := range plan {
		err := r.q.QueryRow(ctx, `
			INSERT INTO fee_installments (fee_id, installment_number, amount, paid_amount, due_date, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			feeID, inst.InstallmentNumber, inst.Amount, inst.PaidAmount, inst.DueDate, string(inst.Status), inst.CreatedAt,
		).Scan(&inst.ID)
		if err != nil {
			return nil, err
		}
		inst.FeeID = feeID
		out = append(out, inst)
	}
	return out, nil
}

// ListInstallments returns the plan of a fee ordered by installment number.
func (r *Repository) ListInstallments(ctx context.Context, feeID int64) ([]Installment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, fee_id, installment_number, amount, paid_amount, due_date, status, created_at
		FROM fee_installments WHERE fee_id = $1 ORDER BY installment_number`, feeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Installment
	for rows.Next() {
		var inst Installment
		var amount, paid pgtype.Numeric
		var status string
		if err := rows.Scan(&inst.ID, &inst.FeeID, &inst.InstallmentNumber, &amount, &paid, &inst.DueDate, &status, &inst.CreatedAt); err != nil {
			return nil, err
		}
		inst.Amount = numericToDecimal(amount)
		inst.PaidAmount = numericToDecimal(paid)
		inst.Status = InstallmentStatus(status)
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpdateInstallments writes paid amounts and statuses back.
func (r *Repository) UpdateInstallments(ctx context.Context, plan []Installment) error {
	batch := &pgx.Batch{}
	for _, inst := range plan {
		batch.Queue(`UPDATE fee_installments SET paid_amount = $2, status = $3 WHERE id = $1`,
			inst.ID, inst.PaidAmount, string(inst.Status))
	}
	return r.sendBatch(ctx, batch)
}

// --- Late fee policies ---

const policyColumns = `id, name, fee_type, grace_period_days, calculation_type, amount,
	max_late_fee, compound, exclude_holidays, is_active, created_at, updated_at`

// InsertPolicy persists a late fee policy.
func (r *Repository) InsertPolicy(ctx context.Context, p LateFeePolicy) (LateFeePolicy, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO late_fee_policies (
			name, fee_type, grace_period_days, calculation_type, amount, max_late_fee,
			compound, exclude_holidays, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		p.Name, p.FeeType, p.GracePeriodDays, string(p.CalculationType), p.Amount, p.MaxLateFee,
		p.Compound, p.ExcludeHolidays, p.IsActive, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	return p, err
}

// ListPolicies returns every policy.
func (r *Repository) ListPolicies(ctx context.Context) ([]LateFeePolicy, error) {
	return r.queryPolicies(ctx, `SELECT `+policyColumns+` FROM late_fee_policies ORDER BY id`)
}

// ListActivePolicies returns active policies scoped to feeType or to all types.
func (r *Repository) ListActivePolicies(ctx context.Context, feeType string) ([]LateFeePolicy, error) {
	return r.queryPolicies(ctx, `SELECT `+policyColumns+` FROM late_fee_policies
		WHERE is_active AND (fee_type IS NULL OR fee_type = $1)
		ORDER BY id`, feeType)
}

func (r *Repository) queryPolicies(ctx context.Context, query string, args ...any) ([]LateFeePolicy, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LateFeePolicy
	for rows.Next() {
		var p LateFeePolicy
		var calc string
		var amount, maxFee pgtype.Numeric
		err := rows.Scan(&p.ID, &p.Name, &p.FeeType, &p.GracePeriodDays, &calc, &amount,
			&maxFee, &p.Compound, &p.ExcludeHolidays, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		p.CalculationType = CalculationType(calc)
		p.Amount = numericToDecimal(amount)
		p.MaxLateFee = numericToDecimal(maxFee)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceLateFeeCharges swaps the fee's accrued charges for charges.
func (r *Repository) ReplaceLateFeeCharges(ctx context.Context, feeID int64, charges []LateFeeCharge) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM late_fee_charges WHERE fee_id = $1`, feeID)
	for _, c := range charges {
		batch.Queue(`
			INSERT INTO late_fee_charges (fee_id, policy_id, chargeable_days, amount, calculated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			feeID, c.PolicyID, c.ChargeableDays, c.Amount, c.CalculatedAt)
	}
	return r.sendBatch(ctx, batch)
}

// --- Payments ---

// InsertPayment persists a payment record.
func (r *Repository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO fee_payments (fee_id, reference, amount, method, note, received_by, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.FeeID, p.Reference, p.Amount, string(p.Method), p.Note, p.ReceivedBy, p.PaidAt, p.CreatedAt,
	).Scan(&p.ID)
	return p, err
}

// ListPayments returns the payments of a fee, oldest first.
func (r *Repository) ListPayments(ctx context.Context, feeID int64) ([]Payment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, fee_id, reference, amount, method, note, received_by, paid_at, created_at
		FROM fee_payments WHERE fee_id = $1 ORDER BY paid_at, id`, feeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		var amount pgtype.Numeric
		var method string
		if err := rows.Scan(&p.ID, &p.FeeID, &p.Reference, &amount, &method, &p.Note, &p.ReceivedBy, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = numericToDecimal(amount)
		p.Method = PaymentMethod(method)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Holidays ---

// ListHolidays returns holiday ranges overlapping [from, to].
func (r *Repository) ListHolidays(ctx context.Context, from, to time.Time) ([]Holiday, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, title, start_date, end_date FROM school_holidays
		WHERE is_active AND start_date <= $2 AND end_date >= $1
		ORDER BY start_date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.ID, &h.Title, &h.StartDate, &h.EndDate); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Helpers ---

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	var br pgx.BatchResults
	switch q := r.q.(type) {
	case pgx.Tx:
		br = q.SendBatch(ctx, batch)
	case *pgxpool.Pool:
		br = q.SendBatch(ctx, batch)
	default:
		return errors.New("fees: querier does not support batches")
	}
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Set(n.Int), n.Exp)
}
