package fees

import (
	"github.com/shopspring/decimal"
)

// StatusFor derives the payment status from what has been paid against what
// is due.
func StatusFor(paid, due decimal.Decimal) FeeStatus {
	switch {
	case paid.IsPositive() && paid.GreaterThanOrEqual(due):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	case due.IsZero():
		// fully waived
		return StatusPaid
	default:
		return StatusUnpaid
	}
}

// ParseFeeStatus maps a status filter to a FeeStatus. An empty value means
// no filter.
func ParseFeeStatus(s string) (FeeStatus, error) {
	switch FeeStatus(s) {
	case "", StatusUnpaid, StatusPartial, StatusPaid:
		return FeeStatus(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Recompute refreshes the fee status from its current balances.
func (f *Fee) Recompute() {
	f.Status = StatusFor(f.PaidAmount, f.AmountDue())
}

// ValidMethod reports whether m is an accepted payment method.
func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCheque, MethodCard:
		return true
	}
	return false
}

// applyPayment adds amount to the fee after validating it against the
// outstanding balance.
func applyPayment(f *Fee, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if f.Status == StatusPaid && !f.Balance().IsPositive() {
		return ErrAlreadyPaid
	}
	if amount.GreaterThan(f.Balance()) {
		return ErrOverpayment
	}
	f.PaidAmount = Round2(f.PaidAmount.Add(amount))
	f.Recompute()
	return nil
}
