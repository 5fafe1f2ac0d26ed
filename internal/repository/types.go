package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/workflow"
)

// ── Domain types ──────────────────────────────────────────────────────────────

// FeeStructure is a school's chargeable fee definition, governed by the fee
// workflow (draft → pending_approval → active → paused/archived/expired).
type FeeStructure struct {
	ID        string          `json:"id"`
	SchoolID  string          `json:"school_id"`
	Name      string          `json:"name"`
	ClassName *string         `json:"class_name,omitempty"`
	Period    string          `json:"period"`
	Amount    decimal.Decimal `json:"amount"`
	Status    workflow.Status `json:"status"`
	CreatedBy *string         `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SubscriptionRequest is a family's request for a paid plan, governed by the
// subscription workflow (pending_payment → under_review → approved/rejected).
type SubscriptionRequest struct {
	ID             string          `json:"id"`
	SchoolID       string          `json:"school_id"`
	StudentID      string          `json:"student_id"`
	PlanName       string          `json:"plan_name"`
	Period         string          `json:"period"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Status         workflow.Status `json:"status"`
	CreatedBy      *string         `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Proof sub-statuses. A request keeps every proof ever uploaded; the newest
// one determines the visible review state.
const (
	ProofUnderReview = "under_review"
	ProofAccepted    = "accepted"
	ProofRejected    = "rejected"
)

// PaymentProof is one uploaded payment receipt attached to a subscription
// request. Rows are never replaced: resubmission appends a new proof.
type PaymentProof struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"request_id"`
	SchoolID       string          `json:"school_id"`
	UploadedBy     string          `json:"uploaded_by"`
	TransferDate   time.Time       `json:"transfer_date"`
	AmountDeclared decimal.Decimal `json:"amount_declared"`
	FilePath       string          `json:"file_path"`
	Status         string          `json:"status"`
	ReviewNote     *string         `json:"review_note,omitempty"`
	ReviewedBy     *string         `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payment is a confirmed payment against a fee structure or subscription.
// Reconciliation reads these; the workflow core never updates them.
type Payment struct {
	ID         string              `json:"id"`
	SchoolID   string              `json:"school_id"`
	EntityType workflow.EntityType `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	PayerID    *string             `json:"payer_id,omitempty"`
	Amount     decimal.Decimal     `json:"amount"`
	PaidAt     time.Time           `json:"paid_at"`
	Method     *string             `json:"method,omitempty"`
	Reference  *string             `json:"reference,omitempty"`
	CreatedBy  *string             `json:"created_by,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Audit actions.
const (
	AuditActionTransition    = "transition"
	AuditActionCreated       = "created"
	AuditActionDeleted       = "deleted"
	AuditActionProofUploaded = "proof_uploaded"
	AuditActionProofReviewed = "proof_reviewed"
)

// AuditRecord is one immutable row in the workflow audit log.
type AuditRecord struct {
	ID         int64               `json:"id"`
	EntityType workflow.EntityType `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	SchoolID   string              `json:"school_id"`
	Action     string              `json:"action"`
	FromStatus *string             `json:"from_status,omitempty"`
	ToStatus   *string             `json:"to_status,omitempty"`
	ActorID    string              `json:"actor_id"`
	Reason     *string             `json:"reason,omitempty"`
	Metadata   map[string]any      `json:"metadata"`
	CreatedAt  time.Time           `json:"created_at"`
}

// StatusPtr converts a workflow status to the nullable string form audit rows
// use.
func StatusPtr(s workflow.Status) *string {
	v := string(s)
	return &v
}
