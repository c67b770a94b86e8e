package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const compoundPrecision = 12

// LateFeeEvaluation is the outcome of one policy against one fee.
type LateFeeEvaluation struct {
	Policy         LateFeePolicy
	DaysOverdue    int
	ChargeableDays int
	Amount         decimal.Decimal
}

// DaysBetween counts whole calendar days from a to b, ignoring time of day.
// The result is negative when b is before a.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Charge computes the policy's charge on base for chargeableDays, capped at
// MaxLateFee when one is configured and rounded to two decimals.
func (p LateFeePolicy) Charge(base decimal.Decimal, chargeableDays int) decimal.Decimal {
	if chargeableDays <= 0 && p.CalculationType != CalcFixed {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(chargeableDays))

	var charge decimal.Decimal
	switch p.CalculationType {
	case CalcFixed:
		charge = p.Amount
	case CalcDaily:
		if p.Compound && base.IsPositive() {
			charge = compound(base, p.Amount.Div(base), chargeableDays)
		} else {
			charge = p.Amount.Mul(days)
		}
	case CalcPercentage:
		rate := p.Amount.Div(hundred)
		if p.Compound {
			charge = compound(base, rate, chargeableDays)
		} else {
			charge = base.Mul(rate).Mul(days)
		}
	default:
		return decimal.Zero
	}

	if p.MaxLateFee.IsPositive() {
		charge = minDecimal(charge, p.MaxLateFee)
	}
	return Round2(clampZero(charge))
}

// compound returns base*((1+rate)^n - 1).
func compound(base, rate decimal.Decimal, n int) decimal.Decimal {
	growth := powInt(decimal.NewFromInt(1).Add(rate), n)
	return base.Mul(growth.Sub(decimal.NewFromInt(1)))
}

func powInt(x decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(x).Round(compoundPrecision)
		}
		x = x.Mul(x).Round(compoundPrecision)
		n >>= 1
	}
	return result
}

// Calendar counts business days for policies that exclude holidays.
type Calendar interface {
	// BusinessDays counts business days in the half-open range (from, to].
	BusinessDays(ctx context.Context, from, to time.Time) (int, error)
}

// EvaluateLateFees runs every applicable policy against fee as of today.
// Policies still inside their grace period produce no evaluation.
func EvaluateLateFees(ctx context.Context, fee Fee, policies []LateFeePolicy, today time.Time, cal Calendar) ([]LateFeeEvaluation, error) {
	if fee.Status == StatusPaid {
		return nil, nil
	}
	overdue := DaysBetween(fee.DueDate, today)
	var out []LateFeeEvaluation
	for _, p := range policies {
		if !p.AppliesTo(fee.FeeType) {
			continue
		}
		if overdue <= p.GracePeriodDays {
			continue
		}
		chargeable := overdue - p.GracePeriodDays
		if p.ExcludeHolidays && cal != nil {
			graceEnd := dateOnly(fee.DueDate).AddDate(0, 0, p.GracePeriodDays)
			n, err := cal.BusinessDays(ctx, graceEnd, dateOnly(today))
			if err != nil {
				return nil, fmt.Errorf("late fees: count business days: %w", err)
			}
			chargeable = n
		}
		out = append(out, LateFeeEvaluation{
			Policy:         p,
			DaysOverdue:    overdue,
			ChargeableDays: chargeable,
			Amount:         p.Charge(fee.NetAmount, chargeable),
		})
	}
	capCombined(out)
	return out, nil
}

// capCombined keeps the sum of charges within the largest cap among the
// evaluated policies. Any uncapped policy leaves the total uncapped.
// Charges are trimmed in policy order.
func capCombined(evals []LateFeeEvaluation) {
	limit := decimal.Zero
	for _, e := range evals {
		if !e.Policy.MaxLateFee.IsPositive() {
			return
		}
		if e.Policy.MaxLateFee.GreaterThan(limit) {
			limit = e.Policy.MaxLateFee
		}
	}
	remaining := limit
	for i := range evals {
		evals[i].Amount = minDecimal(evals[i].Amount, remaining)
		remaining = remaining.Sub(evals[i].Amount)
	}
}

// normalizePolicyAmounts rounds money amounts to two decimals. Percentage
// rates keep their precision.
func normalizePolicyAmounts(in CreatePolicyInput) CreatePolicyInput {
	if in.CalculationType != CalcPercentage {
		in.Amount = Round2(in.Amount)
	}
	in.MaxLateFee = Round2(in.MaxLateFee)
	return in
}

func validatePolicy(in CreatePolicyInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidPolicy)
	}
	if in.GracePeriodDays < 0 {
		return fmt.Errorf("%w: grace period cannot be negative", ErrInvalidPolicy)
	}
	switch in.CalculationType {
	case CalcFixed, CalcDaily, CalcPercentage:
	default:
		return fmt.Errorf("%w: unknown calculation type %q", ErrInvalidPolicy, in.CalculationType)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPolicy)
	}
	if in.MaxLateFee.IsNegative() {
		return fmt.Errorf("%w: max late fee cannot be negative", ErrInvalidPolicy)
	}
	return nil
}
