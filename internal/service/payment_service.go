package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// Statuses a confirmed payment may be recorded against.
var payableStatuses = map[workflow.EntityType]map[workflow.Status]bool{
	workflow.EntityFee: {
		workflow.FeeActive:  true,
		workflow.FeePaused:  true,
		workflow.FeeExpired: true,
	},
	workflow.EntitySubscription: {
		workflow.SubApproved: true,
	},
}

// PaymentService records confirmed payments. It never touches entity status;
// reconciliation picks up new payments on its next read.
type PaymentService struct {
	fees     FeeStore
	subs     SubscriptionStore
	payments PaymentStore
	log      zerolog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(fees FeeStore, subs SubscriptionStore, payments PaymentStore, log zerolog.Logger) *PaymentService {
	return &PaymentService{fees: fees, subs: subs, payments: payments, log: log}
}

// RecordPaymentRequest carries one confirmed payment.
type RecordPaymentRequest struct {
	SchoolID   string
	EntityType workflow.EntityType
	EntityID   string
	PayerID    *string
	Amount     decimal.Decimal
	PaidAt     time.Time
	Method     *string
	Reference  *string
	ActorID    string
}

// RecordPayment validates and stores a confirmed payment against a fee
// structure or an approved subscription.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*repository.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.InvalidInput("amount", "payment amount must be positive")
	}
	if req.PaidAt.IsZero() {
		return nil, apperrors.InvalidInput("paid_at", "payment date is required")
	}

	status, err := s.entityStatus(ctx, req.EntityType, req.EntityID, req.SchoolID)
	if err != nil {
		return nil, err
	}
	if !payableStatuses[req.EntityType][status] {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"cannot record a payment against a %s in status %q", req.EntityType, status)
	}

	payment := &repository.Payment{
		SchoolID:   req.SchoolID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		PayerID:    req.PayerID,
		Amount:     req.Amount,
		PaidAt:     req.PaidAt,
		Method:     req.Method,
		Reference:  req.Reference,
		CreatedBy:  &req.ActorID,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("payment_id", payment.ID).
		Str("school_id", req.SchoolID).
		Str("entity_type", string(req.EntityType)).
		Str("entity_id", req.EntityID).
		Str("amount", req.Amount.String()).
		Msg("Payment recorded")

	return payment, nil
}

// ListPayments returns confirmed payments for an entity, oldest first.
func (s *PaymentService) ListPayments(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) ([]*repository.Payment, error) {
	if _, err := s.entityStatus(ctx, entityType, entityID, schoolID); err != nil {
		return nil, err
	}
	return s.payments.ListForEntity(ctx, schoolID, entityType, entityID)
}

func (s *PaymentService) entityStatus(ctx context.Context, entityType workflow.EntityType, id, schoolID string) (workflow.Status, error) {
	switch entityType {
	case workflow.EntityFee:
		fee, err := s.fees.GetByID(ctx, id, schoolID)
		if err != nil {
			return "", err
		}
		return fee.Status, nil
	case workflow.EntitySubscription:
		sub, err := s.subs.GetByID(ctx, id, schoolID)
		if err != nil {
			return "", err
		}
		return sub.Status, nil
	default:
		return "", apperrors.Newf(apperrors.ErrCodeValidation, "unknown entity type %q", entityType)
	}
}
