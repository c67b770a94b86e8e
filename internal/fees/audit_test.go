package fees

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madrasa-erp/madrasa/internal/shared"
)

func TestMutationsAreAudited(t *testing.T) {
	repo := newMemoryFeeRepo()
	clock := &fixedClock{t: testNow}
	audit := &memoryAudit{}
	svc := NewService(repo, ServiceConfig{Audit: audit, Clock: clock.Now})

	fee := createFee(t, svc, "1000", day(2026, 3, 31))
	w := approvedWaiver(t, svc, AmountPercentage, "10", day(2026, 3, 1), day(2026, 6, 30))

	ctx := shared.ContextWithActor(context.Background(), 42)
	_, err := svc.ApplyWaiverToFee(ctx, fee.ID, w.ID)
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, fee.ID, RecordPaymentInput{Amount: dec("100"), ReceivedBy: 9})
	require.NoError(t, err)

	require.Equal(t, []string{
		"fees:create",
		"waivers:create",
		"waivers:approved",
		"waivers:apply",
		"payments:record",
	}, audit.actions())

	apply := audit.entries[3]
	require.EqualValues(t, 42, apply.ActorID)
	require.Equal(t, "fee", apply.Entity)
	require.Equal(t, "900.00", apply.Meta["net_amount"])

	payment := audit.entries[4]
	require.EqualValues(t, 9, payment.ActorID)
	require.Equal(t, "partial", payment.Meta["status"])
	require.True(t, payment.At.Equal(testNow))
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	repo := newMemoryFeeRepo()
	svc := NewService(repo, ServiceConfig{Audit: &memoryAudit{err: errors.New("audit store down")}, Clock: (&fixedClock{t: testNow}).Now})

	fee := createFee(t, svc, "500", day(2026, 4, 1))
	require.Positive(t, fee.ID)
}

func TestRejectedWaiverIsAudited(t *testing.T) {
	repo := newMemoryFeeRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, ServiceConfig{Audit: audit, Clock: (&fixedClock{t: testNow}).Now})

	w, err := svc.CreateWaiver(context.Background(), CreateWaiverInput{
		StudentID:  7,
		WaiverType: WaiverHardship,
		AmountType: AmountFixed,
		Amount:     dec("200"),
		ValidFrom:  day(2026, 3, 1),
		ValidUntil: day(2026, 3, 31),
	})
	require.NoError(t, err)
	_, err = svc.RejectWaiver(context.Background(), w.ID, 3)
	require.NoError(t, err)

	require.Equal(t, []string{"waivers:create", "waivers:rejected"}, audit.actions())
	require.EqualValues(t, 3, audit.entries[1].ActorID)
}
