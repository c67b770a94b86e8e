package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Reduction computes the amount a waiver takes off feeAmount. Percentage
// waivers are always computed against the original fee amount.
func (w FeeWaiver) Reduction(feeAmount decimal.Decimal) decimal.Decimal {
	switch w.AmountType {
	case AmountPercentage:
		return Round2(feeAmount.Mul(w.Amount).Div(hundred))
	default:
		return Round2(w.Amount)
	}
}

// ActiveOn reports whether the waiver is approved and day lies inside its
// validity window (inclusive on both ends).
func (w FeeWaiver) ActiveOn(day time.Time) bool {
	if w.Status != WaiverApproved {
		return false
	}
	return DaysBetween(w.ValidFrom, day) >= 0 && DaysBetween(day, w.ValidUntil) >= 0
}

// NetAmount returns amount minus the cumulative reductions, never negative.
func NetAmount(amount decimal.Decimal, applied []WaiverApplication) decimal.Decimal {
	total := decimal.Zero
	for _, a := range applied {
		total = total.Add(a.Reduction)
	}
	return clampZero(amount.Sub(total))
}

// FilterApplicable keeps the waivers usable on day.
func FilterApplicable(waivers []FeeWaiver, day time.Time) []FeeWaiver {
	out := make([]FeeWaiver, 0, len(waivers))
	for _, w := range waivers {
		if w.ActiveOn(day) {
			out = append(out, w)
		}
	}
	return out
}

func validateWaiver(in CreateWaiverInput) error {
	if in.StudentID <= 0 {
		return fmt.Errorf("%w: student required", ErrInvalidWaiver)
	}
	if in.FeeID != nil && *in.FeeID <= 0 {
		return fmt.Errorf("%w: fee id must be positive", ErrInvalidWaiver)
	}
	switch in.WaiverType {
	case WaiverScholarship, WaiverSibling, WaiverStaff, WaiverHardship, WaiverOther:
	default:
		return fmt.Errorf("%w: unknown waiver type %q", ErrInvalidWaiver, in.WaiverType)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidWaiver)
	}
	switch in.AmountType {
	case AmountPercentage:
		if in.Amount.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage cannot exceed 100", ErrInvalidWaiver)
		}
	case AmountFixed:
	default:
		return fmt.Errorf("%w: unknown amount type %q", ErrInvalidWaiver, in.AmountType)
	}
	if in.ValidFrom.IsZero() || in.ValidUntil.IsZero() {
		return fmt.Errorf("%w: validity window required", ErrInvalidWaiver)
	}
	if dateOnly(in.ValidUntil).Before(dateOnly(in.ValidFrom)) {
		return fmt.Errorf("%w: valid_until precedes valid_from", ErrInvalidWaiver)
	}
	return nil
}

// dateOnly returns the calendar date of t, read in t's own location, as
// midnight UTC. Dates scanned from PostgreSQL and parsed from requests are
// already UTC midnights, so values from both sides compare as dates.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
