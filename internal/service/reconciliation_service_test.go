package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

func (e *testEnv) pay(t *testing.T, entityType workflow.EntityType, entityID, amount string) {
	t.Helper()
	_, err := e.payments.RecordPayment(context.Background(), RecordPaymentRequest{
		SchoolID:   "school-1",
		EntityType: entityType,
		EntityID:   entityID,
		Amount:     decimal.RequireFromString(amount),
		PaidAt:     mustDate("2026-02-01"),
		ActorID:    "bursar-1",
	})
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name     string
		paid     decimal.Decimal
		expected decimal.Decimal
		want     string
	}{
		{"nothing paid", decimal.Zero, d("100"), ClassificationUnpaid},
		{"partial", d("40"), d("100"), ClassificationPartiallyPaid},
		{"exact", d("100"), d("100"), ClassificationFullyPaid},
		{"overpaid", d("120"), d("100"), ClassificationFullyPaid},
		{"fraction short", d("99.99"), d("100"), ClassificationPartiallyPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.paid, tt.expected))
		})
	}
}

func TestComputeFeeBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fee := env.createFee(t, "school-1", "150.00")
	env.activateFee(t, fee)

	balance, err := env.recon.ComputeFeeBalance(ctx, fee.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, ClassificationUnpaid, balance.Classification)
	assert.True(t, balance.Balance.Equal(decimal.RequireFromString("150.00")))

	env.pay(t, workflow.EntityFee, fee.ID, "50.00")
	env.pay(t, workflow.EntityFee, fee.ID, "25.50")

	balance, err = env.recon.ComputeFeeBalance(ctx, fee.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, ClassificationPartiallyPaid, balance.Classification)
	assert.True(t, balance.TotalPaid.Equal(decimal.RequireFromString("75.50")))
	assert.True(t, balance.Balance.Equal(decimal.RequireFromString("74.50")))

	env.pay(t, workflow.EntityFee, fee.ID, "74.50")

	balance, err = env.recon.ComputeFeeBalance(ctx, fee.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, ClassificationFullyPaid, balance.Classification)
	assert.True(t, balance.Balance.IsZero())
}

func TestComputeBalanceNeverChangesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fee := env.createFee(t, "school-1", "150.00")
	env.activateFee(t, fee)
	env.pay(t, workflow.EntityFee, fee.ID, "150.00")

	_, err := env.recon.ComputeFeeBalance(ctx, fee.ID, "school-1")
	require.NoError(t, err)

	after, err := env.workflow.GetFee(ctx, fee.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.FeeActive, after.Status)
}

func TestComputeSubscriptionBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.createSubscription(t, "school-1")

	_, err := env.evidence.AttachProof(ctx, sub.ID, "school-1", validUpload())
	require.NoError(t, err)
	_, err = env.evidence.ReviewProof(ctx, sub.ID, "school-1", ReviewApprove, "admin-1", nil)
	require.NoError(t, err)

	// the accepted proof alone is not a payment
	balance, err := env.recon.ComputeSubscriptionBalance(ctx, sub.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, ClassificationUnpaid, balance.Classification)

	env.pay(t, workflow.EntitySubscription, sub.ID, "300.00")

	balance, err = env.recon.ComputeSubscriptionBalance(ctx, sub.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, ClassificationFullyPaid, balance.Classification)
}

func TestComputeBalanceTenantScope(t *testing.T) {
	env := newTestEnv(t)
	fee := env.createFee(t, "school-1", "150.00")

	_, err := env.recon.ComputeFeeBalance(context.Background(), fee.ID, "school-2")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestListFeeDefaulters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unpaid := env.createFee(t, "school-1", "100.00")
	env.activateFee(t, unpaid)

	partial := env.createFee(t, "school-1", "100.00")
	env.activateFee(t, partial)
	env.pay(t, workflow.EntityFee, partial.ID, "60.00")

	settled := env.createFee(t, "school-1", "100.00")
	env.activateFee(t, settled)
	env.pay(t, workflow.EntityFee, settled.ID, "100.00")

	// draft fees are not collectible yet and stay out of the report
	env.createFee(t, "school-1", "100.00")

	entries, err := env.recon.ListFeeDefaulters(ctx, "school-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := make(map[string]string)
	for _, entry := range entries {
		byID[entry.Fee.ID] = entry.Balance.Classification
	}
	assert.Equal(t, ClassificationUnpaid, byID[unpaid.ID])
	assert.Equal(t, ClassificationPartiallyPaid, byID[partial.ID])
}

func TestRecordPaymentGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fee := env.createFee(t, "school-1", "150.00")

	// draft fees take no payments
	_, err := env.payments.RecordPayment(ctx, RecordPaymentRequest{
		SchoolID:   "school-1",
		EntityType: workflow.EntityFee,
		EntityID:   fee.ID,
		Amount:     decimal.RequireFromString("10"),
		PaidAt:     mustDate("2026-02-01"),
		ActorID:    "bursar-1",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))

	env.activateFee(t, fee)

	_, err = env.payments.RecordPayment(ctx, RecordPaymentRequest{
		SchoolID:   "school-1",
		EntityType: workflow.EntityFee,
		EntityID:   fee.ID,
		Amount:     decimal.Zero,
		PaidAt:     mustDate("2026-02-01"),
		ActorID:    "bursar-1",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	sub := env.createSubscription(t, "school-1")

	// unapproved subscriptions take no payments
	_, err = env.payments.RecordPayment(ctx, RecordPaymentRequest{
		SchoolID:   "school-1",
		EntityType: workflow.EntitySubscription,
		EntityID:   sub.ID,
		Amount:     decimal.RequireFromString("10"),
		PaidAt:     mustDate("2026-02-01"),
		ActorID:    "bursar-1",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
}
