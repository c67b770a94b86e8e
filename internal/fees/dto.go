package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type createFeeRequest struct {
	StudentID   int64           `json:"student_id" validate:"required,gt=0"`
	FeeType     string          `json:"fee_type" validate:"required,max=64"`
	Description string          `json:"description" validate:"max=255"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type createWaiverRequest struct {
	StudentID  int64           `json:"student_id" validate:"required,gt=0"`
	FeeID      *int64          `json:"fee_id" validate:"omitempty,gt=0"`
	WaiverType string          `json:"waiver_type" validate:"required,oneof=scholarship sibling staff hardship other"`
	AmountType string          `json:"amount_type" validate:"required,oneof=percentage fixed"`
	Amount     decimal.Decimal `json:"amount"`
	ValidFrom  string          `json:"valid_from" validate:"required,datetime=2006-01-02"`
	ValidUntil string          `json:"valid_until" validate:"required,datetime=2006-01-02"`
	Reason     string          `json:"reason" validate:"max=500"`
}

type installmentPlanRequest struct {
	Count     int    `json:"count" validate:"gte=1,lte=60"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Frequency string `json:"frequency" validate:"omitempty,oneof=weekly monthly quarterly"`
}

type createPolicyRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	FeeType         *string         `json:"fee_type" validate:"omitempty,max=64"`
	GracePeriodDays int             `json:"grace_period_days" validate:"gte=0,lte=365"`
	CalculationType string          `json:"calculation_type" validate:"required,oneof=fixed daily percentage"`
	Amount          decimal.Decimal `json:"amount"`
	MaxLateFee      decimal.Decimal `json:"max_late_fee"`
	Compound        bool            `json:"compound"`
	ExcludeHolidays bool            `json:"exclude_holidays"`
	IsActive        *bool           `json:"is_active"`
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer mobile_money cheque card"`
	Note   string          `json:"note" validate:"max=500"`
	PaidAt string          `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

type feeResponse struct {
	ID            int64  `json:"id"`
	StudentID     int64  `json:"student_id"`
	FeeType       string `json:"fee_type"`
	Description   string `json:"description,omitempty"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"`
	NetAmount     string `json:"net_amount"`
	PaidAmount    string `json:"paid_amount"`
	LateFeeTotal  string `json:"late_fee_total"`
	AmountDue     string `json:"amount_due"`
	Balance       string `json:"balance"`
	Status        string `json:"status"`
	DueDate       string `json:"due_date"`
}

func toFeeResponse(f Fee) feeResponse {
	return feeResponse{
		ID:            f.ID,
		StudentID:     f.StudentID,
		FeeType:       f.FeeType,
		Description:   f.Description,
		InvoiceNumber: f.InvoiceNumber,
		Amount:        FormatMoney(f.Amount),
		NetAmount:     FormatMoney(f.NetAmount),
		PaidAmount:    FormatMoney(f.PaidAmount),
		LateFeeTotal:  FormatMoney(f.LateFeeTotal),
		AmountDue:     FormatMoney(f.AmountDue()),
		Balance:       FormatMoney(f.Balance()),
		Status:        string(f.Status),
		DueDate:       f.DueDate.Format(dateLayout),
	}
}

type waiverResponse struct {
	ID         int64  `json:"id"`
	StudentID  int64  `json:"student_id"`
	FeeID      *int64 `json:"fee_id,omitempty"`
	WaiverType string `json:"waiver_type"`
	AmountType string `json:"amount_type"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	ValidFrom  string `json:"valid_from"`
	ValidUntil string `json:"valid_until"`
	Reason     string `json:"reason,omitempty"`
}

func toWaiverResponse(w FeeWaiver) waiverResponse {
	return waiverResponse{
		ID:         w.ID,
		StudentID:  w.StudentID,
		FeeID:      w.FeeID,
		WaiverType: string(w.WaiverType),
		AmountType: string(w.AmountType),
		Amount:     FormatMoney(w.Amount),
		Status:     string(w.Status),
		ValidFrom:  w.ValidFrom.Format(dateLayout),
		ValidUntil: w.ValidUntil.Format(dateLayout),
		Reason:     w.Reason,
	}
}

type installmentResponse struct {
	ID                int64  `json:"id"`
	InstallmentNumber int    `json:"installment_number"`
	Amount            string `json:"amount"`
	PaidAmount        string `json:"paid_amount"`
	DueDate           string `json:"due_date"`
	Status            string `json:"status"`
}

func toInstallmentResponses(plan []Installment) []installmentResponse {
	out := make([]installmentResponse, 0, len(plan))
	for _, i := range plan {
		out = append(out, installmentResponse{
			ID:                i.ID,
			InstallmentNumber: i.InstallmentNumber,
			Amount:            FormatMoney(i.Amount),
			PaidAmount:        FormatMoney(i.PaidAmount),
			DueDate:           i.DueDate.Format(dateLayout),
			Status:            string(i.Status),
		})
	}
	return out
}

type policyResponse struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	FeeType         *string `json:"fee_type"`
	GracePeriodDays int     `json:"grace_period_days"`
	CalculationType string  `json:"calculation_type"`
	Amount          string  `json:"amount"`
	MaxLateFee      string  `json:"max_late_fee"`
	Compound        bool    `json:"compound"`
	ExcludeHolidays bool    `json:"exclude_holidays"`
	IsActive        bool    `json:"is_active"`
}

func toPolicyResponse(p LateFeePolicy) policyResponse {
	return policyResponse{
		ID:              p.ID,
		Name:            p.Name,
		FeeType:         p.FeeType,
		GracePeriodDays: p.GracePeriodDays,
		CalculationType: string(p.CalculationType),
		Amount:          FormatMoney(p.Amount),
		MaxLateFee:      FormatMoney(p.MaxLateFee),
		Compound:        p.Compound,
		ExcludeHolidays: p.ExcludeHolidays,
		IsActive:        p.IsActive,
	}
}

type paymentResponse struct {
	ID        int64  `json:"id"`
	FeeID     int64  `json:"fee_id"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Method    string `json:"payment_method"`
	Note      string `json:"note,omitempty"`
	PaidAt    string `json:"paid_at"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		FeeID:     p.FeeID,
		Reference: p.Reference,
		Amount:    FormatMoney(p.Amount),
		Method:    string(p.Method),
		Note:      p.Note,
		PaidAt:    p.PaidAt.Format(time.RFC3339),
	}
}

type statisticsResponse struct {
	TotalFees     string `json:"total_fees"`
	CollectedFees string `json:"collected_fees"`
	PendingFees   string `json:"pending_fees"`
	LateFees      string `json:"late_fees"`
	WaivedFees    string `json:"waived_fees"`
	PaidCount     int    `json:"paid_count"`
	PartialCount  int    `json:"partial_count"`
	UnpaidCount   int    `json:"unpaid_count"`
}

func toStatisticsResponse(s Statistics) statisticsResponse {
	return statisticsResponse{
		TotalFees:     FormatMoney(s.TotalFees),
		CollectedFees: FormatMoney(s.CollectedFees),
		PendingFees:   FormatMoney(s.PendingFees),
		LateFees:      FormatMoney(s.LateFees),
		WaivedFees:    FormatMoney(s.WaivedFees),
		PaidCount:     s.PaidCount,
		PartialCount:  s.PartialCount,
		UnpaidCount:   s.UnpaidCount,
	}
}
