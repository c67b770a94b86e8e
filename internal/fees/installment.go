package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParseFrequency maps user input to a Frequency, defaulting to monthly.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case "":
		return FrequencyMonthly, nil
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return Frequency(s), nil
	default:
		return "", ErrInvalidFrequency
	}
}

// advance returns start moved forward by n periods of f.
func (f Frequency) advance(start time.Time, n int) time.Time {
	switch f {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*n)
	case FrequencyQuarterly:
		return start.AddDate(0, 3*n, 0)
	default:
		return start.AddDate(0, n, 0)
	}
}

// PlanInstallments splits amount into count installments. Installments 2..N
// receive floor(amount/count) to two decimals and the first installment
// absorbs the remainder, so the amounts always sum to amount.
func PlanInstallments(feeID int64, amount decimal.Decimal, in InstallmentPlanInput) ([]Installment, error) {
	if in.Count < 1 {
		return nil, ErrInvalidInstallmentCount
	}
	freq, err := ParseFrequency(string(in.Frequency))
	if err != nil {
		return nil, err
	}

	count := decimal.NewFromInt(int64(in.Count))
	base := amount.Div(count).RoundFloor(2)
	first := amount.Sub(base.Mul(count.Sub(decimal.NewFromInt(1))))

	start := dateOnly(in.StartDate)
	plan := make([]Installment, in.Count)
	for i := range plan {
		amt := base
		if i == 0 {
			amt = first
		}
		plan[i] = Installment{
			FeeID:             feeID,
			InstallmentNumber: i + 1,
			Amount:            amt,
			PaidAmount:        decimal.Zero,
			DueDate:           freq.advance(start, i),
			Status:            InstallmentPending,
		}
	}
	return plan, nil
}

// AllocatePaid spreads paid across installments oldest first and updates
// each installment's paid amount and status.
func AllocatePaid(plan []Installment, paid decimal.Decimal) []Installment {
	remaining := paid
	for i := range plan {
		covered := minDecimal(clampZero(remaining), plan[i].Amount)
		plan[i].PaidAmount = covered
		switch {
		case covered.Equal(plan[i].Amount):
			plan[i].Status = InstallmentPaid
		case covered.IsPositive():
			plan[i].Status = InstallmentPartial
		default:
			plan[i].Status = InstallmentPending
		}
		remaining = remaining.Sub(covered)
	}
	return plan
}
