package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// Balance classifications.
const (
	ClassificationUnpaid        = "unpaid"
	ClassificationPartiallyPaid = "partially_paid"
	ClassificationFullyPaid     = "fully_paid"
)

// Balance is the derived financial position of a workflow entity. It is
// computed from confirmed payments only; unreviewed proofs never count.
type Balance struct {
	EntityType     workflow.EntityType `json:"entity_type"`
	EntityID       string              `json:"entity_id"`
	TotalPaid      decimal.Decimal     `json:"total_paid"`
	Expected       decimal.Decimal     `json:"expected"`
	Balance        decimal.Decimal     `json:"balance"`
	Classification string              `json:"classification"`
}

// ReconciliationService derives paid-vs-expected aggregates. It is strictly
// read-side: computing a balance never changes any stored status, keeping
// "is this entity active" and "how much has been paid" independently
// auditable.
type ReconciliationService struct {
	fees     FeeStore
	subs     SubscriptionStore
	payments PaymentStore
	log      zerolog.Logger
}

// NewReconciliationService creates a new ReconciliationService.
func NewReconciliationService(fees FeeStore, subs SubscriptionStore, payments PaymentStore, log zerolog.Logger) *ReconciliationService {
	return &ReconciliationService{fees: fees, subs: subs, payments: payments, log: log}
}

// ComputeFeeBalance computes the balance for a fee structure.
func (s *ReconciliationService) ComputeFeeBalance(ctx context.Context, id, schoolID string) (*Balance, error) {
	fee, err := s.fees.GetByID(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, workflow.EntityFee, id, schoolID, fee.Amount)
}

// ComputeSubscriptionBalance computes the balance for a subscription request.
func (s *ReconciliationService) ComputeSubscriptionBalance(ctx context.Context, id, schoolID string) (*Balance, error) {
	sub, err := s.subs.GetByID(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, workflow.EntitySubscription, id, schoolID, sub.ExpectedAmount)
}

func (s *ReconciliationService) compute(ctx context.Context, entityType workflow.EntityType, id, schoolID string, expected decimal.Decimal) (*Balance, error) {
	totalPaid, err := s.payments.SumForEntity(ctx, schoolID, entityType, id)
	if err != nil {
		return nil, err
	}

	return &Balance{
		EntityType:     entityType,
		EntityID:       id,
		TotalPaid:      totalPaid,
		Expected:       expected,
		Balance:        expected.Sub(totalPaid),
		Classification: Classify(totalPaid, expected),
	}, nil
}

// Classify maps a paid/expected pair to its classification.
func Classify(totalPaid, expected decimal.Decimal) string {
	switch {
	case totalPaid.IsZero():
		return ClassificationUnpaid
	case totalPaid.GreaterThanOrEqual(expected):
		return ClassificationFullyPaid
	default:
		return ClassificationPartiallyPaid
	}
}

// DefaulterEntry is one under-collected active fee structure in the
// defaulters report.
type DefaulterEntry struct {
	Fee     *repository.FeeStructure `json:"fee"`
	Balance *Balance                 `json:"balance"`
}

// defaulterScanLimit bounds how many active fee structures one report reads.
const defaulterScanLimit = 500

// ListFeeDefaulters reports every active fee structure of a school that is
// not fully paid.
func (s *ReconciliationService) ListFeeDefaulters(ctx context.Context, schoolID string) ([]*DefaulterEntry, error) {
	active := workflow.FeeActive
	fees, err := s.fees.List(ctx, schoolID, &active, defaulterScanLimit, 0)
	if err != nil {
		return nil, err
	}

	var entries []*DefaulterEntry
	for _, fee := range fees {
		balance, err := s.compute(ctx, workflow.EntityFee, fee.ID, schoolID, fee.Amount)
		if err != nil {
			return nil, err
		}
		if balance.Classification == ClassificationFullyPaid {
			continue
		}
		entries = append(entries, &DefaulterEntry{Fee: fee, Balance: balance})
	}
	return entries, nil
}
