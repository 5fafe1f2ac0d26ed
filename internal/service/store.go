package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/client"
	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// Storage contracts consumed by the services. The pgx repositories implement
// them in production; tests substitute an in-memory store.

// FeeStore persists fee structures.
type FeeStore interface {
	Create(ctx context.Context, fee *repository.FeeStructure, audit *repository.AuditRecord) error
	GetByID(ctx context.Context, id, schoolID string) (*repository.FeeStructure, error)
	List(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.FeeStructure, error)
	TransitionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *repository.AuditRecord) (*repository.FeeStructure, error)
	Delete(ctx context.Context, id, schoolID string, audit *repository.AuditRecord) error
}

// SubscriptionStore persists subscription requests.
type SubscriptionStore interface {
	Create(ctx context.Context, req *repository.SubscriptionRequest, audit *repository.AuditRecord) error
	GetByID(ctx context.Context, id, schoolID string) (*repository.SubscriptionRequest, error)
	List(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.SubscriptionRequest, error)
	TransitionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *repository.AuditRecord) (*repository.SubscriptionRequest, error)
}

// ProofStore persists payment proofs.
type ProofStore interface {
	Insert(ctx context.Context, proof *repository.PaymentProof) error
	ListByRequest(ctx context.Context, requestID, schoolID string) ([]*repository.PaymentProof, error)
	GetLatest(ctx context.Context, requestID, schoolID string) (*repository.PaymentProof, error)
	MarkReviewed(ctx context.Context, id, schoolID, outcome, reviewedBy string, note *string) error
}

// PaymentStore records and aggregates confirmed payments.
type PaymentStore interface {
	Insert(ctx context.Context, p *repository.Payment) error
	SumForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) (decimal.Decimal, error)
	CountForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) (int64, error)
	ListForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) ([]*repository.Payment, error)
}

// AuditStore appends and reads the audit trail outside transition
// transactions (transition audits ride inside the store's own transaction).
type AuditStore interface {
	Append(ctx context.Context, rec *repository.AuditRecord) error
	History(ctx context.Context, entityType workflow.EntityType, entityID, schoolID string) ([]*repository.AuditRecord, error)
}

// EventPublisher sends workflow events to the notification pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, event client.WorkflowEvent)
}

var (
	_ FeeStore          = (*repository.FeeRepository)(nil)
	_ SubscriptionStore = (*repository.SubscriptionRepository)(nil)
	_ ProofStore        = (*repository.ProofRepository)(nil)
	_ PaymentStore      = (*repository.PaymentRepository)(nil)
	_ AuditStore        = (*repository.AuditRepository)(nil)
	_ EventPublisher    = (*client.Notifier)(nil)
)
