package fees

import (
	"fmt"

	"github.com/madrasa-erp/madrasa/internal/platform/httpx"
)

// Domain errors. Each wraps an httpx sentinel so handlers can map them to
// problem responses with errors.Is.
var (
	ErrFeeNotFound      = fmt.Errorf("fee %w", httpx.ErrNotFound)
	ErrWaiverNotFound   = fmt.Errorf("waiver %w", httpx.ErrNotFound)
	ErrInvalidFee       = fmt.Errorf("%w: invalid fee", httpx.ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be greater than zero", httpx.ErrValidation)
	ErrInvalidWaiver    = fmt.Errorf("%w: invalid waiver", httpx.ErrValidation)
	ErrInvalidPolicy    = fmt.Errorf("%w: invalid late fee policy", httpx.ErrValidation)
	ErrInvalidMethod    = fmt.Errorf("%w: unsupported payment method", httpx.ErrValidation)
	ErrOverpayment      = fmt.Errorf("%w: payment exceeds outstanding balance", httpx.ErrValidation)
	ErrAlreadyPaid      = fmt.Errorf("%w: fee already paid", httpx.ErrConflict)
	ErrWaiverReviewed   = fmt.Errorf("%w: waiver already reviewed", httpx.ErrConflict)
	ErrWaiverApplied    = fmt.Errorf("%w: waiver already applied to fee", httpx.ErrConflict)
	ErrDuplicatePayment = fmt.Errorf("%w: payment already recorded", httpx.ErrDuplicate)
	ErrInvalidKey       = fmt.Errorf("%w: idempotency key must be 1-128 characters", httpx.ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: status must be one of unpaid, partial, paid", httpx.ErrValidation)

	ErrInvalidInstallmentCount  = fmt.Errorf("%w: installment count must be at least 1", httpx.ErrValidation)
	ErrInvalidFrequency         = fmt.Errorf("%w: unsupported installment frequency", httpx.ErrValidation)
	ErrWaiverNotApplicable      = fmt.Errorf("%w: waiver is not approved or outside its validity window", httpx.ErrValidation)
	ErrWaiverStudentMismatch    = fmt.Errorf("%w: waiver belongs to another student or fee", httpx.ErrValidation)
	ErrInvoiceSequenceExhausted = fmt.Errorf("%w: could not allocate a unique invoice number", httpx.ErrConflict)
)
