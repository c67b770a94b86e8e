package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus enumerates payment states of a fee.
type FeeStatus string

const (
	StatusUnpaid  FeeStatus = "unpaid"
	StatusPartial FeeStatus = "partial"
	StatusPaid    FeeStatus = "paid"
)

// Fee is a single charge billed to a student.
type Fee struct {
	ID            int64
	StudentID     int64
	FeeType       string
	Description   string
	Amount        decimal.Decimal
	NetAmount     decimal.Decimal
	PaidAmount    decimal.Decimal
	LateFeeTotal  decimal.Decimal
	Status        FeeStatus
	DueDate       time.Time
	InvoiceNumber string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AmountDue is the payable total: net amount plus accrued late fees.
func (f Fee) AmountDue() decimal.Decimal {
	return f.NetAmount.Add(f.LateFeeTotal)
}

// Balance is the outstanding amount, never negative.
func (f Fee) Balance() decimal.Decimal {
	return clampZero(f.AmountDue().Sub(f.PaidAmount))
}

// WaiverType classifies why a waiver was granted.
type WaiverType string

const (
	WaiverScholarship WaiverType = "scholarship"
	WaiverSibling     WaiverType = "sibling"
	WaiverStaff       WaiverType = "staff"
	WaiverHardship    WaiverType = "hardship"
	WaiverOther       WaiverType = "other"
)

// AmountType selects how a waiver amount is interpreted.
type AmountType string

const (
	AmountPercentage AmountType = "percentage"
	AmountFixed      AmountType = "fixed"
)

// WaiverStatus enumerates the approval lifecycle of a waiver.
type WaiverStatus string

const (
	WaiverPending  WaiverStatus = "pending"
	WaiverApproved WaiverStatus = "approved"
	WaiverRejected WaiverStatus = "rejected"
	WaiverExpired  WaiverStatus = "expired"
)

// FeeWaiver reduces a student's payable amount. A nil FeeID means the waiver
// may be applied to any of the student's fees.
type FeeWaiver struct {
	ID         int64
	StudentID  int64
	FeeID      *int64
	WaiverType WaiverType
	AmountType AmountType
	Amount     decimal.Decimal
	Status     WaiverStatus
	ValidFrom  time.Time
	ValidUntil time.Time
	Reason     string
	CreatedBy  int64
	ReviewedBy *int64
	ReviewedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WaiverApplication records a waiver applied to a fee and the reduction it produced.
type WaiverApplication struct {
	ID        int64
	FeeID     int64
	WaiverID  int64
	Reduction decimal.Decimal
	AppliedAt time.Time
}

// Frequency spaces installment due dates.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// InstallmentStatus tracks whether an installment is covered by payments.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
)

// Installment is one scheduled portion of a fee.
type Installment struct {
	ID                int64
	FeeID             int64
	InstallmentNumber int
	Amount            decimal.Decimal
	PaidAmount        decimal.Decimal
	DueDate           time.Time
	Status            InstallmentStatus
	CreatedAt         time.Time
}

// CalculationType selects the late fee formula.
type CalculationType string

const (
	CalcFixed      CalculationType = "fixed"
	CalcDaily      CalculationType = "daily"
	CalcPercentage CalculationType = "percentage"
)

// LateFeePolicy configures late charges. A nil FeeType applies the policy to
// every fee type. A zero MaxLateFee leaves the charge uncapped.
type LateFeePolicy struct {
	ID              int64
	Name            string
	FeeType         *string
	GracePeriodDays int
	CalculationType CalculationType
	Amount          decimal.Decimal
	MaxLateFee      decimal.Decimal
	Compound        bool
	ExcludeHolidays bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppliesTo reports whether the policy is scoped to feeType.
func (p LateFeePolicy) AppliesTo(feeType string) bool {
	return p.IsActive && (p.FeeType == nil || *p.FeeType == feeType)
}

// LateFeeCharge is the accrued charge of one policy on one fee.
type LateFeeCharge struct {
	FeeID          int64
	PolicyID       int64
	ChargeableDays int
	Amount         decimal.Decimal
	CalculatedAt   time.Time
}

// PaymentMethod enumerates accepted payment channels.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCheque       PaymentMethod = "cheque"
	MethodCard         PaymentMethod = "card"
)

// Payment is the audit record of money received against a fee.
type Payment struct {
	ID         int64
	FeeID      int64
	Reference  string
	Amount     decimal.Decimal
	Method     PaymentMethod
	Note       string
	ReceivedBy int64
	PaidAt     time.Time
	CreatedAt  time.Time
}

// Statistics summarises the fee ledger.
type Statistics struct {
	TotalFees     decimal.Decimal `json:"total_fees"`
	CollectedFees decimal.Decimal `json:"collected_fees"`
	PendingFees   decimal.Decimal `json:"pending_fees"`
	LateFees      decimal.Decimal `json:"late_fees"`
	WaivedFees    decimal.Decimal `json:"waived_fees"`
	PaidCount     int             `json:"paid_count"`
	PartialCount  int             `json:"partial_count"`
	UnpaidCount   int             `json:"unpaid_count"`
}

// Reminder describes an outstanding fee a guardian should be reminded about.
type Reminder struct {
	FeeID         int64
	StudentID     int64
	InvoiceNumber string
	DueDate       time.Time
	Balance       decimal.Decimal
	DaysOverdue   int
}

// Holiday is a closed date range on the school calendar.
type Holiday struct {
	ID        int64
	Title     string
	StartDate time.Time
	EndDate   time.Time
}

// --- Inputs ---

// CreateFeeInput carries the data required to bill a student.
type CreateFeeInput struct {
	StudentID   int64
	FeeType     string
	Description string
	Amount      decimal.Decimal
	DueDate     time.Time
	CreatedBy   int64
}

// FeeFilter narrows fee listings.
type FeeFilter struct {
	Status    FeeStatus
	StudentID int64
	FeeType   string
	Limit     int
	Offset    int
}

// CreateWaiverInput carries a waiver request.
type CreateWaiverInput struct {
	StudentID  int64
	FeeID      *int64
	WaiverType WaiverType
	AmountType AmountType
	Amount     decimal.Decimal
	ValidFrom  time.Time
	ValidUntil time.Time
	Reason     string
	CreatedBy  int64
}

// InstallmentPlanInput describes a plan to split a fee.
type InstallmentPlanInput struct {
	Count     int
	StartDate time.Time
	Frequency Frequency
}

// CreatePolicyInput carries a late fee policy definition.
type CreatePolicyInput struct {
	Name            string
	FeeType         *string
	GracePeriodDays int
	CalculationType CalculationType
	Amount          decimal.Decimal
	MaxLateFee      decimal.Decimal
	Compound        bool
	ExcludeHolidays bool
	IsActive        bool
}

// RecordPaymentInput carries a payment submission.
type RecordPaymentInput struct {
	Amount         decimal.Decimal
	Method         PaymentMethod
	Note           string
	ReceivedBy     int64
	PaidAt         time.Time
	IdempotencyKey string
}

// LateFeeRunResult summarises a batch late fee run.
type LateFeeRunResult struct {
	Processed int
	Charged   int
	Failed    int
	Total     decimal.Decimal
}
