package fees

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 3, 12, 0, 1, 0, 0, time.UTC)
	require.Equal(t, 2, DaysBetween(a, b))
	require.Equal(t, -2, DaysBetween(b, a))
	require.Equal(t, 0, DaysBetween(a, a))
}

func TestPolicyCharge(t *testing.T) {
	cases := []struct {
		name   string
		policy LateFeePolicy
		base   string
		days   int
		want   string
	}{
		{"fixed", LateFeePolicy{CalculationType: CalcFixed, Amount: dec("25")}, "1000", 3, "25.00"},
		{"fixed capped", LateFeePolicy{CalculationType: CalcFixed, Amount: dec("25"), MaxLateFee: dec("10")}, "1000", 3, "10.00"},
		{"daily linear", LateFeePolicy{CalculationType: CalcDaily, Amount: dec("50")}, "1000", 3, "150.00"},
		{"daily capped", LateFeePolicy{CalculationType: CalcDaily, Amount: dec("50"), MaxLateFee: dec("200")}, "1000", 10, "200.00"},
		{"daily compound", LateFeePolicy{CalculationType: CalcDaily, Amount: dec("10"), Compound: true}, "1000", 2, "20.10"},
		{"percentage linear", LateFeePolicy{CalculationType: CalcPercentage, Amount: dec("1")}, "1000", 5, "50.00"},
		{"percentage compound", LateFeePolicy{CalculationType: CalcPercentage, Amount: dec("1"), Compound: true}, "1000", 2, "20.10"},
		{"no days", LateFeePolicy{CalculationType: CalcDaily, Amount: dec("50")}, "1000", 0, "0.00"},
		{"unknown type", LateFeePolicy{CalculationType: "weekly", Amount: dec("50")}, "1000", 4, "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.Charge(dec(tc.base), tc.days)
			require.Equal(t, tc.want, FormatMoney(got))
		})
	}
}

func TestEvaluateLateFeesRespectsGraceAndScope(t *testing.T) {
	tuition := "tuition"
	transport := "transport"
	fee := Fee{
		ID:        1,
		FeeType:   tuition,
		NetAmount: dec("1000"),
		Status:    StatusUnpaid,
		DueDate:   day(2026, 3, 1),
	}
	policies := []LateFeePolicy{
		{ID: 1, CalculationType: CalcFixed, Amount: dec("10"), GracePeriodDays: 3, IsActive: true},
		{ID: 2, CalculationType: CalcDaily, Amount: dec("1"), GracePeriodDays: 7, FeeType: &tuition, IsActive: true},
		{ID: 3, CalculationType: CalcFixed, Amount: dec("99"), FeeType: &transport, IsActive: true},
		{ID: 4, CalculationType: CalcFixed, Amount: dec("99"), IsActive: false},
	}

	evals, err := EvaluateLateFees(context.Background(), fee, policies, day(2026, 3, 8), NoHolidays{})
	require.NoError(t, err)
	require.Len(t, evals, 1)
	require.Equal(t, int64(1), evals[0].Policy.ID)
	require.Equal(t, 7, evals[0].DaysOverdue)
	require.Equal(t, 4, evals[0].ChargeableDays)

	evals, err = EvaluateLateFees(context.Background(), fee, policies, day(2026, 3, 11), NoHolidays{})
	require.NoError(t, err)
	require.Len(t, evals, 2)
	require.Equal(t, 3, evals[1].ChargeableDays)
	require.Equal(t, "3.00", FormatMoney(evals[1].Amount))
}

func TestStoreCalendarSkipsWeekendsAndHolidays(t *testing.T) {
	repo := newMemoryFeeRepo()
	cal := NewStoreCalendar(repo, time.Saturday, time.Sunday)
	ctx := context.Background()

	n, err := cal.BusinessDays(ctx, day(2026, 3, 13), day(2026, 3, 20))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	repo.holidays = []Holiday{{StartDate: day(2026, 3, 17), EndDate: day(2026, 3, 18)}}
	n, err = cal.BusinessDays(ctx, day(2026, 3, 13), day(2026, 3, 20))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = cal.BusinessDays(ctx, day(2026, 3, 20), day(2026, 3, 13))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNoHolidaysCountsCalendarDays(t *testing.T) {
	n, err := NoHolidays{}.BusinessDays(context.Background(), day(2026, 2, 27), day(2026, 3, 2))
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestEvaluateLateFeesCapsCombinedTotal(t *testing.T) {
	fee := Fee{ID: 1, FeeType: "tuition", NetAmount: dec("1000"), Status: StatusUnpaid, DueDate: day(2026, 3, 1)}
	daily := LateFeePolicy{ID: 1, CalculationType: CalcDaily, Amount: dec("50"), MaxLateFee: dec("200"), IsActive: true}
	fixed := LateFeePolicy{ID: 2, CalculationType: CalcFixed, Amount: dec("100"), MaxLateFee: dec("150"), IsActive: true}
	sum := func(evals []LateFeeEvaluation) string {
		total := dec("0")
		for _, e := range evals {
			total = total.Add(e.Amount)
		}
		return FormatMoney(total)
	}

	evals, err := EvaluateLateFees(context.Background(), fee, []LateFeePolicy{daily, fixed}, day(2026, 3, 11), NoHolidays{})
	require.NoError(t, err)
	require.Len(t, evals, 2)
	require.Equal(t, "200.00", sum(evals))
	require.Equal(t, "200.00", FormatMoney(evals[0].Amount))
	require.Equal(t, "0.00", FormatMoney(evals[1].Amount))

	fixed.MaxLateFee = dec("0")
	evals, err = EvaluateLateFees(context.Background(), fee, []LateFeePolicy{daily, fixed}, day(2026, 3, 11), NoHolidays{})
	require.NoError(t, err)
	require.Equal(t, "300.00", sum(evals))
}
