package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedFeeTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{FeeDraft, FeePendingApproval, true},
		{FeeDraft, FeeCancelled, true},
		{FeeDraft, FeeActive, false},
		{FeeDraft, FeeArchived, false},
		{FeePendingApproval, FeeActive, true},
		{FeePendingApproval, FeeRejected, true},
		{FeePendingApproval, FeeDraft, true},
		{FeeActive, FeePaused, true},
		{FeeActive, FeeArchived, true},
		{FeeActive, FeeExpired, true},
		{FeeActive, FeeDraft, false},
		{FeePaused, FeeActive, true},
		{FeePaused, FeeArchived, true},
		{FeeRejected, FeeDraft, true},
		{FeeRejected, FeeActive, false},
		{FeeExpired, FeeArchived, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(EntityFee, tc.from, tc.to),
			"fee %s -> %s", tc.from, tc.to)
	}
}

func TestAllowedSubscriptionTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{SubPendingPayment, SubUnderReview, true},
		{SubPendingPayment, SubApproved, false},
		{SubUnderReview, SubApproved, true},
		{SubUnderReview, SubRejected, true},
		{SubUnderReview, SubPendingPayment, false},
		{SubRejected, SubPendingPayment, true},
		{SubRejected, SubApproved, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(EntitySubscription, tc.from, tc.to),
			"subscription %s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	feeStatuses := []Status{
		FeeDraft, FeePendingApproval, FeeActive, FeePaused,
		FeeRejected, FeeExpired, FeeArchived, FeeCancelled,
	}
	for _, terminal := range []Status{FeeArchived, FeeCancelled} {
		require.True(t, Terminal(EntityFee, terminal))
		for _, to := range feeStatuses {
			assert.False(t, Allowed(EntityFee, terminal, to),
				"terminal fee status %s must not allow %s", terminal, to)
		}
	}

	subStatuses := []Status{SubPendingPayment, SubUnderReview, SubApproved, SubRejected}
	require.True(t, Terminal(EntitySubscription, SubApproved))
	for _, to := range subStatuses {
		assert.False(t, Allowed(EntitySubscription, SubApproved, to))
	}
}

func TestSelfTransitionsRejected(t *testing.T) {
	for _, s := range []Status{FeeDraft, FeePendingApproval, FeeActive, FeePaused} {
		assert.False(t, Allowed(EntityFee, s, s))
	}
	for _, s := range []Status{SubPendingPayment, SubUnderReview} {
		assert.False(t, Allowed(EntitySubscription, s, s))
	}
}

func TestUnknownPairsFailClosed(t *testing.T) {
	assert.False(t, Allowed(EntityFee, Status("bogus"), FeeActive))
	assert.False(t, Allowed(EntityFee, FeeDraft, Status("bogus")))
	assert.False(t, Allowed(EntityType("lesson_plan"), FeeDraft, FeeActive))
	assert.True(t, Terminal(EntityFee, Status("bogus")))
	assert.Empty(t, AllowedTargets(EntityType("lesson_plan"), FeeDraft))
}

func TestAllowedTargetsIsACopy(t *testing.T) {
	targets := AllowedTargets(EntityFee, FeeDraft)
	require.Len(t, targets, 2)
	targets[0] = Status("mutated")
	assert.True(t, Allowed(EntityFee, FeeDraft, FeePendingApproval))
}

func TestInitialAndKnown(t *testing.T) {
	assert.Equal(t, FeeDraft, Initial(EntityFee))
	assert.Equal(t, SubPendingPayment, Initial(EntitySubscription))
	assert.True(t, Known(EntityFee, FeePaused))
	assert.False(t, Known(EntityFee, Status("shipped")))
	assert.True(t, KnownEntityType(EntitySubscription))
	assert.False(t, KnownEntityType(EntityType("attendance")))
}
