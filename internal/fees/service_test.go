package fees

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T) (*Service, *memoryFeeRepo, *fixedClock) {
	t.Helper()
	repo := newMemoryFeeRepo()
	clock := &fixedClock{t: testNow}
	svc := NewService(repo, ServiceConfig{
		Idempotency: newMemoryIdempotency(),
		Clock:       clock.Now,
	})
	return svc, repo, clock
}

func createFee(t *testing.T, svc *Service, amount string, due time.Time) Fee {
	t.Helper()
	fee, err := svc.Create(context.Background(), CreateFeeInput{
		StudentID: 7,
		FeeType:   "tuition",
		Amount:    dec(amount),
		DueDate:   due,
		CreatedBy: 1,
	})
	require.NoError(t, err)
	return fee
}

func approvedWaiver(t *testing.T, svc *Service, amountType AmountType, amount string, from, until time.Time) FeeWaiver {
	t.Helper()
	ctx := context.Background()
	w, err := svc.CreateWaiver(ctx, CreateWaiverInput{
		StudentID:  7,
		WaiverType: WaiverScholarship,
		AmountType: amountType,
		Amount:     dec(amount),
		ValidFrom:  from,
		ValidUntil: until,
	})
	require.NoError(t, err)
	w, err = svc.ApproveWaiver(ctx, w.ID, 2)
	require.NoError(t, err)
	return w
}

func TestCreateFeeAssignsSequentialInvoiceNumbers(t *testing.T) {
	svc, _, _ := newTestService(t)

	first := createFee(t, svc, "1000", day(2026, 4, 1))
	second := createFee(t, svc, "500", day(2026, 4, 1))

	require.Equal(t, "INV-2026-03-00001", first.InvoiceNumber)
	require.Equal(t, "INV-2026-03-00002", second.InvoiceNumber)
	require.Equal(t, StatusUnpaid, first.Status)
	require.True(t, first.NetAmount.Equal(dec("1000")))

	parsed, err := ParseInvoiceNumber(second.InvoiceNumber)
	require.NoError(t, err)
	require.Equal(t, 2, parsed.Sequence)
	require.Equal(t, "2026-03", parsed.Bucket())
}

func TestCreateFeeRestartsSequencePerMonth(t *testing.T) {
	svc, _, clock := newTestService(t)

	createFee(t, svc, "100", day(2026, 4, 1))
	clock.Advance(31 * 24 * time.Hour)
	next := createFee(t, svc, "100", day(2026, 5, 1))

	require.Equal(t, "INV-2026-04-00001", next.InvoiceNumber)
}

func TestCreateFeeRetriesOnInvoiceCollision(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.invoices["INV-2026-03-00001"] = 99

	fee := createFee(t, svc, "1000", day(2026, 4, 1))

	require.Equal(t, "INV-2026-03-00002", fee.InvoiceNumber)
	require.Equal(t, 2, repo.txCalls)
}

func TestCreateFeeGivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	for seq := 1; seq <= maxInvoiceAttempts; seq++ {
		repo.invoices[NewInvoiceNumber("INV", testNow, seq).String()] = int64(100 + seq)
	}

	_, err := svc.Create(context.Background(), CreateFeeInput{
		StudentID: 7,
		FeeType:   "tuition",
		Amount:    dec("10"),
		DueDate:   day(2026, 4, 1),
	})
	require.ErrorIs(t, err, ErrInvoiceSequenceExhausted)
}

func TestCreateFeeValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateFeeInput{
		{FeeType: "tuition", Amount: dec("10"), DueDate: testNow},
		{StudentID: 1, Amount: dec("10"), DueDate: testNow},
		{StudentID: 1, FeeType: "tuition", Amount: dec("0"), DueDate: testNow},
		{StudentID: 1, FeeType: "tuition", Amount: dec("10")},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, in)
		require.ErrorIs(t, err, ErrInvalidFee)
	}
}

func TestCreateFeeUsesConfiguredPrefix(t *testing.T) {
	repo := newMemoryFeeRepo()
	clock := &fixedClock{t: testNow}
	svc := NewService(repo, ServiceConfig{InvoicePrefix: "mdr", Clock: clock.Now})

	fee := createFee(t, svc, "10", day(2026, 4, 1))
	require.Equal(t, "MDR-2026-03-00001", fee.InvoiceNumber)
}

func TestApplyPercentageWaiver(t *testing.T) {
	svc, _, _ := newTestService(t)
	fee := createFee(t, svc, "1000", day(2026, 4, 1))
	w := approvedWaiver(t, svc, AmountPercentage, "20", day(2026, 1, 1), day(2026, 12, 31))

	updated, err := svc.ApplyWaiverToFee(context.Background(), fee.ID, w.ID)
	require.NoError(t, err)
	require.Equal(t, "800.00", FormatMoney(updated.NetAmount))
	require.Equal(t, StatusUnpaid, updated.Status)
}

func TestWaiversStackAgainstOriginalAmount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))
	a := approvedWaiver(t, svc, AmountPercentage, "20", day(2026, 1, 1), day(2026, 12, 31))
	b := approvedWaiver(t, svc, AmountPercentage, "10", day(2026, 1, 1), day(2026, 12, 31))

	_, err := svc.ApplyWaiverToFee(ctx, fee.ID, a.ID)
	require.NoError(t, err)
	updated, err := svc.ApplyWaiverToFee(ctx, fee.ID, b.ID)
	require.NoError(t, err)

	// 10% of the original 1000, not of the reduced 800.
	require.Equal(t, "700.00", FormatMoney(updated.NetAmount))
}

func TestFixedWaiverClampsNetAmountAtZero(t *testing.T) {
	svc, _, _ := newTestService(t)
	fee := createFee(t, svc, "300", day(2026, 4, 1))
	w := approvedWaiver(t, svc, AmountFixed, "500", day(2026, 1, 1), day(2026, 12, 31))

	updated, err := svc.ApplyWaiverToFee(context.Background(), fee.ID, w.ID)
	require.NoError(t, err)
	require.True(t, updated.NetAmount.IsZero())
	require.Equal(t, StatusPaid, updated.Status)
}

func TestApplySameWaiverTwiceRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))
	w := approvedWaiver(t, svc, AmountFixed, "100", day(2026, 1, 1), day(2026, 12, 31))

	_, err := svc.ApplyWaiverToFee(ctx, fee.ID, w.ID)
	require.NoError(t, err)
	_, err = svc.ApplyWaiverToFee(ctx, fee.ID, w.ID)
	require.ErrorIs(t, err, ErrWaiverApplied)

	got, err := svc.Get(ctx, fee.ID)
	require.NoError(t, err)
	require.Equal(t, "900.00", FormatMoney(got.NetAmount))
}

func TestExpiredWaiverIsNotApplicable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))
	expired := approvedWaiver(t, svc, AmountPercentage, "50", day(2026, 1, 1), day(2026, 3, 14))
	current := approvedWaiver(t, svc, AmountPercentage, "10", day(2026, 3, 1), day(2026, 3, 15))
	_, err := svc.CreateWaiver(ctx, CreateWaiverInput{
		StudentID:  7,
		WaiverType: WaiverSibling,
		AmountType: AmountFixed,
		Amount:     dec("50"),
		ValidFrom:  day(2026, 1, 1),
		ValidUntil: day(2026, 12, 31),
	})
	require.NoError(t, err)

	list, err := svc.GetApplicableWaivers(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, current.ID, list[0].ID)

	_, err = svc.ApplyWaiverToFee(ctx, fee.ID, expired.ID)
	require.ErrorIs(t, err, ErrWaiverNotApplicable)
}

func TestWaiverForAnotherStudentRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))

	w, err := svc.CreateWaiver(ctx, CreateWaiverInput{
		StudentID:  8,
		WaiverType: WaiverHardship,
		AmountType: AmountFixed,
		Amount:     dec("100"),
		ValidFrom:  day(2026, 1, 1),
		ValidUntil: day(2026, 12, 31),
	})
	require.NoError(t, err)
	_, err = svc.ApproveWaiver(ctx, w.ID, 2)
	require.NoError(t, err)

	_, err = svc.ApplyWaiverToFee(ctx, fee.ID, w.ID)
	require.ErrorIs(t, err, ErrWaiverStudentMismatch)

	_, err = svc.CreateWaiver(ctx, CreateWaiverInput{
		StudentID:  8,
		FeeID:      &fee.ID,
		WaiverType: WaiverHardship,
		AmountType: AmountFixed,
		Amount:     dec("100"),
		ValidFrom:  day(2026, 1, 1),
		ValidUntil: day(2026, 12, 31),
	})
	require.ErrorIs(t, err, ErrWaiverStudentMismatch)
}

func TestCreateWaiverValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	base := CreateWaiverInput{
		StudentID:  7,
		WaiverType: WaiverStaff,
		AmountType: AmountPercentage,
		Amount:     dec("10"),
		ValidFrom:  day(2026, 1, 1),
		ValidUntil: day(2026, 12, 31),
	}

	over := base
	over.Amount = dec("120")
	_, err := svc.CreateWaiver(ctx, over)
	require.ErrorIs(t, err, ErrInvalidWaiver)

	backwards := base
	backwards.ValidUntil = day(2025, 12, 31)
	_, err = svc.CreateWaiver(ctx, backwards)
	require.ErrorIs(t, err, ErrInvalidWaiver)

	unknown := base
	unknown.WaiverType = "bribe"
	_, err = svc.CreateWaiver(ctx, unknown)
	require.ErrorIs(t, err, ErrInvalidWaiver)
}

func TestReviewWaiverOnlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	w := approvedWaiver(t, svc, AmountFixed, "100", day(2026, 1, 1), day(2026, 12, 31))
	require.Equal(t, WaiverApproved, w.Status)
	require.NotNil(t, w.ReviewedBy)

	_, err := svc.RejectWaiver(ctx, w.ID, 3)
	require.ErrorIs(t, err, ErrWaiverReviewed)

	_, err = svc.ApproveWaiver(ctx, 404, 3)
	require.ErrorIs(t, err, ErrWaiverNotFound)
}

func TestExpireWaivers(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	stale := approvedWaiver(t, svc, AmountFixed, "100", day(2026, 1, 1), day(2026, 2, 28))
	fresh := approvedWaiver(t, svc, AmountFixed, "100", day(2026, 1, 1), day(2026, 3, 15))

	n, err := svc.ExpireWaivers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, WaiverExpired, repo.waivers[stale.ID].Status)
	require.Equal(t, WaiverApproved, repo.waivers[fresh.ID].Status)
}

func TestCreateInstallmentPlanEqualSplit(t *testing.T) {
	svc, _, _ := newTestService(t)
	fee := createFee(t, svc, "1200", day(2026, 4, 1))

	plan, err := svc.CreateInstallmentPlan(context.Background(), fee.ID, InstallmentPlanInput{
		Count:     4,
		StartDate: day(2026, 4, 1),
	})
	require.NoError(t, err)
	require.Len(t, plan, 4)
	for i, inst := range plan {
		require.Equal(t, i+1, inst.InstallmentNumber)
		require.Equal(t, "300.00", FormatMoney(inst.Amount))
		require.Equal(t, InstallmentPending, inst.Status)
		require.Equal(t, day(2026, time.Month(4+i), 1), inst.DueDate)
	}
}

func TestCreateInstallmentPlanRequiresPositiveCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	fee := createFee(t, svc, "1200", day(2026, 4, 1))

	_, err := svc.CreateInstallmentPlan(context.Background(), fee.ID, InstallmentPlanInput{Count: 0})
	require.ErrorIs(t, err, ErrInvalidInstallmentCount)
}

func TestCreateInstallmentPlanReplacesExisting(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "900", day(2026, 4, 1))

	_, err := svc.CreateInstallmentPlan(ctx, fee.ID, InstallmentPlanInput{Count: 3, StartDate: day(2026, 4, 1)})
	require.NoError(t, err)
	_, err = svc.CreateInstallmentPlan(ctx, fee.ID, InstallmentPlanInput{Count: 2, StartDate: day(2026, 4, 1), Frequency: FrequencyQuarterly})
	require.NoError(t, err)

	plan, err := svc.ListInstallments(ctx, fee.ID)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, day(2026, 7, 1), plan[1].DueDate)
}

func TestLateFeeGracePeriod(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "flat",
		GracePeriodDays: 3,
		CalculationType: CalcFixed,
		Amount:          dec("25"),
		IsActive:        true,
	})
	require.NoError(t, err)

	withinGrace := createFee(t, svc, "1000", day(2026, 3, 13))
	pastGrace := createFee(t, svc, "1000", day(2026, 3, 10))

	got, err := svc.CalculateAndApplyLateFees(ctx, withinGrace.ID)
	require.NoError(t, err)
	require.True(t, got.LateFeeTotal.IsZero())

	got, err = svc.CalculateAndApplyLateFees(ctx, pastGrace.ID)
	require.NoError(t, err)
	require.Equal(t, "25.00", FormatMoney(got.LateFeeTotal))
	require.Equal(t, "1025.00", FormatMoney(got.AmountDue()))
}

func TestDailyLateFeeIsCapped(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "daily",
		CalculationType: CalcDaily,
		Amount:          dec("50"),
		MaxLateFee:      dec("200"),
		IsActive:        true,
	})
	require.NoError(t, err)
	fee := createFee(t, svc, "1000", day(2026, 3, 5))

	got, err := svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)
	require.Equal(t, "200.00", FormatMoney(got.LateFeeTotal))
	require.Len(t, repo.charges[fee.ID], 1)
	require.Equal(t, 10, repo.charges[fee.ID][0].ChargeableDays)
}

func TestLateFeeRecalculationIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "daily",
		CalculationType: CalcDaily,
		Amount:          dec("5"),
		IsActive:        true,
	})
	require.NoError(t, err)
	_, err = svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "flat",
		CalculationType: CalcFixed,
		Amount:          dec("10"),
		IsActive:        true,
	})
	require.NoError(t, err)
	fee := createFee(t, svc, "1000", day(2026, 3, 5))

	first, err := svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)
	second, err := svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)

	require.Equal(t, "60.00", FormatMoney(first.LateFeeTotal))
	require.True(t, first.LateFeeTotal.Equal(second.LateFeeTotal))
	require.Len(t, repo.charges[fee.ID], 2)
}

func TestLateFeePolicyScopedByFeeType(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	transport := "transport"
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "transport only",
		FeeType:         &transport,
		CalculationType: CalcFixed,
		Amount:          dec("15"),
		IsActive:        true,
	})
	require.NoError(t, err)
	fee := createFee(t, svc, "1000", day(2026, 3, 1))

	got, err := svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)
	require.True(t, got.LateFeeTotal.IsZero())
}

func TestLateFeeExcludesHolidays(t *testing.T) {
	repo := newMemoryFeeRepo()
	repo.holidays = []Holiday{{Title: "Spring break", StartDate: day(2026, 3, 11), EndDate: day(2026, 3, 12)}}
	clock := &fixedClock{t: time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, ServiceConfig{
		Calendar: NewStoreCalendar(repo, time.Saturday, time.Sunday),
		Clock:    clock.Now,
	})
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "business days",
		CalculationType: CalcDaily,
		Amount:          dec("10"),
		ExcludeHolidays: true,
		IsActive:        true,
	})
	require.NoError(t, err)
	fee := createFee(t, svc, "1000", day(2026, 3, 10))

	got, err := svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)
	// Mar 13, 16 and 17 remain after dropping the weekend and the break.
	require.Equal(t, "30.00", FormatMoney(got.LateFeeTotal))
}

func TestLateFeeSkipsPaidFee(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "flat",
		CalculationType: CalcFixed,
		Amount:          dec("25"),
		IsActive:        true,
	})
	require.NoError(t, err)
	fee := createFee(t, svc, "100", day(2026, 3, 1))
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("100")})
	require.NoError(t, err)

	got, err := svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)
	require.True(t, got.LateFeeTotal.IsZero())
	require.Equal(t, StatusPaid, got.Status)
}

func TestApplyOverdueLateFees(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "flat",
		GracePeriodDays: 2,
		CalculationType: CalcFixed,
		Amount:          dec("20"),
		IsActive:        true,
	})
	require.NoError(t, err)
	createFee(t, svc, "100", day(2026, 3, 1))
	createFee(t, svc, "100", day(2026, 3, 14))
	createFee(t, svc, "100", day(2026, 4, 1))
	paid := createFee(t, svc, "100", day(2026, 3, 1))
	_, _, err = svc.RecordPayment(ctx, paid.ID, RecordPaymentInput{Amount: dec("100")})
	require.NoError(t, err)

	result, err := svc.ApplyOverdueLateFees(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 1, result.Charged)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, "20.00", FormatMoney(result.Total))
}

func TestCreatePolicyValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{Name: "x", CalculationType: "weekly", Amount: dec("1")})
	require.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = svc.CreatePolicy(ctx, CreatePolicyInput{Name: "x", CalculationType: CalcFixed, Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = svc.CreatePolicy(ctx, CreatePolicyInput{Name: "x", CalculationType: CalcFixed, Amount: dec("1"), GracePeriodDays: -1})
	require.ErrorIs(t, err, ErrInvalidPolicy)

	blank := "  "
	p, err := svc.CreatePolicy(ctx, CreatePolicyInput{Name: "x", FeeType: &blank, CalculationType: CalcFixed, Amount: dec("1"), IsActive: true})
	require.NoError(t, err)
	require.Nil(t, p.FeeType)
}

func TestRecordPaymentStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))

	payment, got, err := svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("600"), Method: MethodBankTransfer})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)
	require.Equal(t, "600.00", FormatMoney(got.PaidAmount))
	require.NotEmpty(t, payment.Reference)
	require.Equal(t, testNow, payment.PaidAt)

	_, got, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("400")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, "1000.00", FormatMoney(got.PaidAmount))

	payments, err := svc.ListPayments(ctx, fee.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, MethodCash, payments[1].Method)
	require.NotEqual(t, payments[0].Reference, payments[1].Reference)
}

func TestRecordPaymentRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))

	_, _, err := svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("10"), Method: "barter"})
	require.ErrorIs(t, err, ErrInvalidMethod)
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("1000.01")})
	require.ErrorIs(t, err, ErrOverpayment)
	_, _, err = svc.RecordPayment(ctx, 404, RecordPaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrFeeNotFound)

	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("1000")})
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestRecordPaymentCoversLateFees(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{Name: "flat", CalculationType: CalcFixed, Amount: dec("50"), IsActive: true})
	require.NoError(t, err)
	fee := createFee(t, svc, "1000", day(2026, 3, 1))
	_, err = svc.CalculateAndApplyLateFees(ctx, fee.ID)
	require.NoError(t, err)

	_, got, err := svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("1000")})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)

	_, got, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("50")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.True(t, got.Balance().IsZero())
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1000", day(2026, 4, 1))

	_, _, err := svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("100"), IdempotencyKey: "k-1"})
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("100"), IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, ErrDuplicatePayment)

	// A rejected payment releases its key so the client can retry.
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("5000"), IdempotencyKey: "k-2"})
	require.ErrorIs(t, err, ErrOverpayment)
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("50"), IdempotencyKey: "k-2"})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("10"), IdempotencyKey: strings.Repeat("k", 129)})
	require.ErrorIs(t, err, ErrInvalidKey)

	got, err := svc.Get(ctx, fee.ID)
	require.NoError(t, err)
	require.Equal(t, "150.00", FormatMoney(got.PaidAmount))
}

func TestRecordPaymentAllocatesInstallments(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	fee := createFee(t, svc, "1200", day(2026, 4, 1))
	_, err := svc.CreateInstallmentPlan(ctx, fee.ID, InstallmentPlanInput{Count: 4, StartDate: day(2026, 4, 1)})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("450")})
	require.NoError(t, err)

	plan, err := svc.ListInstallments(ctx, fee.ID)
	require.NoError(t, err)
	require.Equal(t, InstallmentPaid, plan[0].Status)
	require.Equal(t, InstallmentPartial, plan[1].Status)
	require.Equal(t, "150.00", FormatMoney(plan[1].PaidAmount))
	require.Equal(t, InstallmentPending, plan[2].Status)
}

func TestGetStatistics(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	paid := createFee(t, svc, "1000", day(2026, 4, 1))
	partial := createFee(t, svc, "500", day(2026, 4, 1))
	createFee(t, svc, "300", day(2026, 4, 1))

	_, _, err := svc.RecordPayment(ctx, paid.ID, RecordPaymentInput{Amount: dec("1000")})
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, partial.ID, RecordPaymentInput{Amount: dec("200")})
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, "1800.00", FormatMoney(stats.TotalFees))
	require.Equal(t, "1200.00", FormatMoney(stats.CollectedFees))
	require.Equal(t, "600.00", FormatMoney(stats.PendingFees))
	require.Equal(t, 1, stats.PaidCount)
	require.Equal(t, 1, stats.PartialCount)
	require.Equal(t, 1, stats.UnpaidCount)
}

func TestListFeesFiltersAndCounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createFee(t, svc, "100", day(2026, 4, 1))
	}
	paid := createFee(t, svc, "100", day(2026, 4, 1))
	_, _, err := svc.RecordPayment(ctx, paid.ID, RecordPaymentInput{Amount: dec("100")})
	require.NoError(t, err)

	items, total, err := svc.List(ctx, FeeFilter{Status: StatusUnpaid, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 3, total)
}

func TestDueReminders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	overdue := createFee(t, svc, "100", day(2026, 3, 10))
	soon := createFee(t, svc, "200", day(2026, 3, 18))
	createFee(t, svc, "300", day(2026, 4, 30))

	reminders, err := svc.DueReminders(ctx, 3)
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	require.Equal(t, overdue.ID, reminders[0].FeeID)
	require.Equal(t, 5, reminders[0].DaysOverdue)
	require.Equal(t, soon.ID, reminders[1].FeeID)
	require.Equal(t, 0, reminders[1].DaysOverdue)
	require.Equal(t, "200.00", FormatMoney(reminders[1].Balance))
}

func newZonedService(t *testing.T, loc *time.Location, now time.Time) *Service {
	t.Helper()
	clock := &fixedClock{t: now}
	return NewService(newMemoryFeeRepo(), ServiceConfig{
		Idempotency: newMemoryIdempotency(),
		Clock:       clock.Now,
		Location:    loc,
	})
}

func TestWaiverWindowUsesSchoolDate(t *testing.T) {
	ctx := context.Background()

	t.Run("east of UTC on the first valid day", func(t *testing.T) {
		dhaka := time.FixedZone("Asia/Dhaka", 6*3600)
		// 02:00 on 15 March in Dhaka, still 14 March in UTC.
		svc := newZonedService(t, dhaka, time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC))
		fee := createFee(t, svc, "1000", day(2026, 4, 1))
		w := approvedWaiver(t, svc, AmountPercentage, "10", day(2026, 3, 15), day(2026, 12, 31))

		applicable, err := svc.GetApplicableWaivers(ctx, 7)
		require.NoError(t, err)
		require.Len(t, applicable, 1)

		updated, err := svc.ApplyWaiverToFee(ctx, fee.ID, w.ID)
		require.NoError(t, err)
		require.Equal(t, "900.00", FormatMoney(updated.NetAmount))
	})

	t.Run("west of UTC on the last valid day", func(t *testing.T) {
		newYork := time.FixedZone("America/New_York", -4*3600)
		// 22:00 on 15 March in New York, already 16 March in UTC.
		svc := newZonedService(t, newYork, time.Date(2026, 3, 16, 2, 0, 0, 0, time.UTC))
		fee := createFee(t, svc, "1000", day(2026, 4, 1))
		w := approvedWaiver(t, svc, AmountFixed, "100", day(2026, 3, 1), day(2026, 3, 15))

		applicable, err := svc.GetApplicableWaivers(ctx, 7)
		require.NoError(t, err)
		require.Len(t, applicable, 1)

		_, err = svc.ApplyWaiverToFee(ctx, fee.ID, w.ID)
		require.NoError(t, err)
	})

	t.Run("west of UTC after the window closes", func(t *testing.T) {
		newYork := time.FixedZone("America/New_York", -4*3600)
		svc := newZonedService(t, newYork, time.Date(2026, 3, 16, 5, 0, 0, 0, time.UTC))
		approvedWaiver(t, svc, AmountFixed, "100", day(2026, 3, 1), day(2026, 3, 15))

		applicable, err := svc.GetApplicableWaivers(ctx, 7)
		require.NoError(t, err)
		require.Empty(t, applicable)
	})
}

func TestStatisticsPendingIncludesLateFees(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Name:            "flat",
		CalculationType: CalcFixed,
		Amount:          dec("50"),
		IsActive:        true,
	})
	require.NoError(t, err)

	late := createFee(t, svc, "1000", day(2026, 3, 1))
	createFee(t, svc, "200", day(2026, 4, 1))

	charged, err := svc.CalculateAndApplyLateFees(ctx, late.ID)
	require.NoError(t, err)
	require.Equal(t, "50.00", FormatMoney(charged.LateFeeTotal))
	_, paid, err := svc.RecordPayment(ctx, late.ID, RecordPaymentInput{Amount: dec("1050")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, "1200.00", FormatMoney(stats.TotalFees))
	require.Equal(t, "1050.00", FormatMoney(stats.CollectedFees))
	require.Equal(t, "50.00", FormatMoney(stats.LateFees))
	require.Equal(t, "200.00", FormatMoney(stats.PendingFees))
}

func TestAmountsRoundingToZeroAreRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFeeInput{StudentID: 7, FeeType: "tuition", Amount: dec("0.004"), DueDate: day(2026, 4, 1)})
	require.ErrorIs(t, err, ErrInvalidFee)

	fee, err := svc.Create(ctx, CreateFeeInput{StudentID: 7, FeeType: "tuition", Amount: dec("100.005"), DueDate: day(2026, 4, 1)})
	require.NoError(t, err)
	require.Equal(t, "100.01", FormatMoney(fee.Amount))

	_, err = svc.CreateWaiver(ctx, CreateWaiverInput{
		StudentID:  7,
		WaiverType: WaiverSibling,
		AmountType: AmountFixed,
		Amount:     dec("0.001"),
		ValidFrom:  day(2026, 3, 1),
		ValidUntil: day(2026, 3, 31),
	})
	require.ErrorIs(t, err, ErrInvalidWaiver)

	_, err = svc.CreatePolicy(ctx, CreatePolicyInput{Name: "tiny", CalculationType: CalcFixed, Amount: dec("0.004"), IsActive: true})
	require.ErrorIs(t, err, ErrInvalidPolicy)

	p, err := svc.CreatePolicy(ctx, CreatePolicyInput{Name: "rate", CalculationType: CalcPercentage, Amount: dec("0.125"), IsActive: true})
	require.NoError(t, err)
	require.True(t, p.Amount.Equal(dec("0.125")))

	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("0.004")})
	require.ErrorIs(t, err, ErrInvalidAmount)
}
