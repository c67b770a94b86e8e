package fees

import "github.com/shopspring/decimal"

// Summarize aggregates fee balances into ledger statistics. TotalFees sums
// net amounts, so waived money is reported separately in WaivedFees.
// PendingFees sums outstanding balances, late fees included.
func Summarize(list []Fee) Statistics {
	s := Statistics{
		TotalFees:     decimal.Zero,
		CollectedFees: decimal.Zero,
		PendingFees:   decimal.Zero,
		LateFees:      decimal.Zero,
		WaivedFees:    decimal.Zero,
	}
	for _, f := range list {
		s.TotalFees = s.TotalFees.Add(f.NetAmount)
		s.CollectedFees = s.CollectedFees.Add(f.PaidAmount)
		s.LateFees = s.LateFees.Add(f.LateFeeTotal)
		s.WaivedFees = s.WaivedFees.Add(f.Amount.Sub(f.NetAmount))
		s.PendingFees = s.PendingFees.Add(f.Balance())
		switch f.Status {
		case StatusPaid:
			s.PaidCount++
		case StatusPartial:
			s.PartialCount++
		default:
			s.UnpaidCount++
		}
	}
	return s
}
