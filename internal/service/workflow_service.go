package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/client"
	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// WorkflowService is the only writer of entity status. It loads the entity
// scoped by school, checks the transition table, and persists the new status
// together with exactly one audit row in a single transaction. A stale read
// detected by the conditional update surfaces as a conflict.
type WorkflowService struct {
	fees     FeeStore
	subs     SubscriptionStore
	payments PaymentStore
	audit    AuditStore
	notifier EventPublisher
	log      zerolog.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	fees FeeStore,
	subs SubscriptionStore,
	payments PaymentStore,
	audit AuditStore,
	notifier EventPublisher,
	log zerolog.Logger,
) *WorkflowService {
	return &WorkflowService{
		fees:     fees,
		subs:     subs,
		payments: payments,
		audit:    audit,
		notifier: notifier,
		log:      log,
	}
}

// ── Fee structures ────────────────────────────────────────────────────────────

// CreateFeeRequest carries the fields for a new fee structure.
type CreateFeeRequest struct {
	SchoolID  string
	Name      string
	ClassName *string
	Period    string
	Amount    decimal.Decimal
	ActorID   string
}

// CreateFee creates a fee structure in draft status.
func (s *WorkflowService) CreateFee(ctx context.Context, req CreateFeeRequest) (*repository.FeeStructure, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.InvalidInput("name", "name is required")
	}
	if strings.TrimSpace(req.Period) == "" {
		return nil, apperrors.InvalidInput("period", "period is required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperrors.InvalidInput("amount", "amount must be positive")
	}

	fee := &repository.FeeStructure{
		SchoolID:  req.SchoolID,
		Name:      req.Name,
		ClassName: req.ClassName,
		Period:    req.Period,
		Amount:    req.Amount,
		CreatedBy: &req.ActorID,
	}

	audit := &repository.AuditRecord{
		EntityType: workflow.EntityFee,
		SchoolID:   req.SchoolID,
		Action:     repository.AuditActionCreated,
		ToStatus:   repository.StatusPtr(workflow.Initial(workflow.EntityFee)),
		ActorID:    req.ActorID,
	}

	if err := s.fees.Create(ctx, fee, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("fee_id", fee.ID).
		Str("school_id", fee.SchoolID).
		Str("period", fee.Period).
		Str("amount", fee.Amount.String()).
		Msg("Fee structure created")

	return fee, nil
}

// GetFee retrieves a fee structure.
func (s *WorkflowService) GetFee(ctx context.Context, id, schoolID string) (*repository.FeeStructure, error) {
	return s.fees.GetByID(ctx, id, schoolID)
}

// ListFees lists a school's fee structures.
func (s *WorkflowService) ListFees(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.FeeStructure, error) {
	return s.fees.List(ctx, schoolID, status, limit, offset)
}

// TransitionFee moves a fee structure to a new status.
func (s *WorkflowService) TransitionFee(ctx context.Context, id, schoolID string, to workflow.Status, actorID string, reason *string) (*repository.FeeStructure, error) {
	fee, err := s.fees.GetByID(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}
	from := fee.Status

	if !workflow.Allowed(workflow.EntityFee, from, to) {
		return nil, apperrors.InvalidTransition(string(workflow.EntityFee), string(from), string(to))
	}

	audit := transitionAudit(workflow.EntityFee, id, schoolID, from, to, actorID, reason, nil)
	updated, err := s.fees.TransitionStatus(ctx, id, schoolID, from, to, audit)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("fee_id", id).
		Str("school_id", schoolID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor_id", actorID).
		Msg("Fee structure transitioned")

	s.publish(ctx, "fee_transitioned", workflow.EntityFee, id, schoolID, actorID, from, to)
	return updated, nil
}

// DeleteFeeResult reports how a delete request was honored.
type DeleteFeeResult struct {
	// Archived is true when the delete was downgraded to an archive
	// transition because payments exist against the fee.
	Archived bool
	Fee      *repository.FeeStructure
}

// DeleteFee removes a fee structure. A draft fee with no recorded payments is
// hard-deleted; a fee with payments is archived instead, and the substitution
// is recorded in the audit trail so the downgrade is never silent.
func (s *WorkflowService) DeleteFee(ctx context.Context, id, schoolID, actorID string) (*DeleteFeeResult, error) {
	fee, err := s.fees.GetByID(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}

	paid, err := s.payments.CountForEntity(ctx, schoolID, workflow.EntityFee, id)
	if err != nil {
		return nil, err
	}

	if paid > 0 {
		if !workflow.Allowed(workflow.EntityFee, fee.Status, workflow.FeeArchived) {
			return nil, apperrors.InvalidTransition(string(workflow.EntityFee), string(fee.Status), string(workflow.FeeArchived))
		}

		reason := fmt.Sprintf("auto-archived: delete requested with %d recorded payments", paid)
		audit := transitionAudit(workflow.EntityFee, id, schoolID, fee.Status, workflow.FeeArchived, actorID, &reason,
			map[string]any{"delete_downgraded": true, "payment_count": paid})

		archived, err := s.fees.TransitionStatus(ctx, id, schoolID, fee.Status, workflow.FeeArchived, audit)
		if err != nil {
			return nil, err
		}

		s.log.Info().
			Str("fee_id", id).
			Str("school_id", schoolID).
			Int64("payment_count", paid).
			Msg("Fee delete downgraded to archive")

		s.publish(ctx, "fee_transitioned", workflow.EntityFee, id, schoolID, actorID, fee.Status, workflow.FeeArchived)
		return &DeleteFeeResult{Archived: true, Fee: archived}, nil
	}

	if fee.Status != workflow.FeeDraft {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"only draft fee structures can be deleted (status is %q); archive it instead", fee.Status)
	}

	audit := &repository.AuditRecord{
		EntityType: workflow.EntityFee,
		EntityID:   id,
		SchoolID:   schoolID,
		Action:     repository.AuditActionDeleted,
		FromStatus: repository.StatusPtr(fee.Status),
		ActorID:    actorID,
	}
	if err := s.fees.Delete(ctx, id, schoolID, audit); err != nil {
		return nil, err
	}

	s.log.Info().Str("fee_id", id).Str("school_id", schoolID).Msg("Fee structure deleted")
	return &DeleteFeeResult{}, nil
}

// ── Subscription requests ─────────────────────────────────────────────────────

// CreateSubscriptionRequest carries the fields for a new subscription request.
type CreateSubscriptionRequest struct {
	SchoolID       string
	StudentID      string
	PlanName       string
	Period         string
	ExpectedAmount decimal.Decimal
	ActorID        string
}

// CreateSubscription creates a subscription request in pending_payment
// status. Renewal of an approved request is a new request, never a
// transition.
func (s *WorkflowService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*repository.SubscriptionRequest, error) {
	if strings.TrimSpace(req.StudentID) == "" {
		return nil, apperrors.InvalidInput("student_id", "student id is required")
	}
	if strings.TrimSpace(req.PlanName) == "" {
		return nil, apperrors.InvalidInput("plan_name", "plan name is required")
	}
	if strings.TrimSpace(req.Period) == "" {
		return nil, apperrors.InvalidInput("period", "period is required")
	}
	if !req.ExpectedAmount.IsPositive() {
		return nil, apperrors.InvalidInput("expected_amount", "expected amount must be positive")
	}

	sub := &repository.SubscriptionRequest{
		SchoolID:       req.SchoolID,
		StudentID:      req.StudentID,
		PlanName:       req.PlanName,
		Period:         req.Period,
		ExpectedAmount: req.ExpectedAmount,
		CreatedBy:      &req.ActorID,
	}

	audit := &repository.AuditRecord{
		EntityType: workflow.EntitySubscription,
		SchoolID:   req.SchoolID,
		Action:     repository.AuditActionCreated,
		ToStatus:   repository.StatusPtr(workflow.Initial(workflow.EntitySubscription)),
		ActorID:    req.ActorID,
	}

	if err := s.subs.Create(ctx, sub, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", sub.ID).
		Str("school_id", sub.SchoolID).
		Str("student_id", sub.StudentID).
		Str("plan_name", sub.PlanName).
		Msg("Subscription request created")

	return sub, nil
}

// GetSubscription retrieves a subscription request.
func (s *WorkflowService) GetSubscription(ctx context.Context, id, schoolID string) (*repository.SubscriptionRequest, error) {
	return s.subs.GetByID(ctx, id, schoolID)
}

// ListSubscriptions lists a school's subscription requests.
func (s *WorkflowService) ListSubscriptions(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.SubscriptionRequest, error) {
	return s.subs.List(ctx, schoolID, status, limit, offset)
}

// TransitionSubscription moves a subscription request to a new status.
func (s *WorkflowService) TransitionSubscription(ctx context.Context, id, schoolID string, to workflow.Status, actorID string, reason *string) (*repository.SubscriptionRequest, error) {
	sub, err := s.subs.GetByID(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}
	from := sub.Status

	if !workflow.Allowed(workflow.EntitySubscription, from, to) {
		return nil, apperrors.InvalidTransition(string(workflow.EntitySubscription), string(from), string(to))
	}

	audit := transitionAudit(workflow.EntitySubscription, id, schoolID, from, to, actorID, reason, nil)
	updated, err := s.subs.TransitionStatus(ctx, id, schoolID, from, to, audit)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", id).
		Str("school_id", schoolID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor_id", actorID).
		Msg("Subscription request transitioned")

	s.publish(ctx, "subscription_transitioned", workflow.EntitySubscription, id, schoolID, actorID, from, to)
	return updated, nil
}

// History returns the audit trail for an entity.
func (s *WorkflowService) History(ctx context.Context, entityType workflow.EntityType, entityID, schoolID string) ([]*repository.AuditRecord, error) {
	if !workflow.KnownEntityType(entityType) {
		return nil, apperrors.Newf(apperrors.ErrCodeValidation, "unknown entity type %q", entityType)
	}
	return s.audit.History(ctx, entityType, entityID, schoolID)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func transitionAudit(entityType workflow.EntityType, entityID, schoolID string, from, to workflow.Status, actorID string, reason *string, metadata map[string]any) *repository.AuditRecord {
	return &repository.AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		SchoolID:   schoolID,
		Action:     repository.AuditActionTransition,
		FromStatus: repository.StatusPtr(from),
		ToStatus:   repository.StatusPtr(to),
		ActorID:    actorID,
		Reason:     reason,
		Metadata:   metadata,
	}
}

func (s *WorkflowService) publish(ctx context.Context, eventType string, entityType workflow.EntityType, entityID, schoolID, actorID string, from, to workflow.Status) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, client.WorkflowEvent{
		EventType:  eventType,
		EntityType: string(entityType),
		EntityID:   entityID,
		SchoolID:   schoolID,
		ActorID:    actorID,
		FromStatus: string(from),
		ToStatus:   string(to),
	})
}
