package service

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/client"
	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/storage"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// DefaultMaxUploadBytes caps evidence uploads at 5 MiB.
const DefaultMaxUploadBytes = 5 << 20

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

var allowedMIMETypes = []string{"image/jpeg", "image/png", "application/pdf"}

// EvidenceService attaches payment proofs to subscription requests. It never
// writes request status itself: status changes are delegated to the workflow
// engine so the transition table and audit guarantees hold on this path too.
type EvidenceService struct {
	subs           SubscriptionStore
	proofs         ProofStore
	files          storage.EvidenceStore
	engine         *WorkflowService
	audit          AuditStore
	notifier       EventPublisher
	log            zerolog.Logger
	maxUploadBytes int64
}

// NewEvidenceService creates a new EvidenceService. maxUploadBytes <= 0 uses
// the default cap.
func NewEvidenceService(
	subs SubscriptionStore,
	proofs ProofStore,
	files storage.EvidenceStore,
	engine *WorkflowService,
	audit AuditStore,
	notifier EventPublisher,
	log zerolog.Logger,
	maxUploadBytes int64,
) *EvidenceService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &EvidenceService{
		subs:           subs,
		proofs:         proofs,
		files:          files,
		engine:         engine,
		audit:          audit,
		notifier:       notifier,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// ProofUpload carries one uploaded payment receipt.
type ProofUpload struct {
	FileName       string
	Content        []byte
	DeclaredAmount decimal.Decimal
	TransferDate   time.Time
	ActorID        string
}

// AttachProof validates and stores an uploaded proof, then moves the owning
// request to under_review through the workflow engine.
//
// Validation reports every violated rule at once so the caller can fix all of
// them in a single resubmission. The content-sniffed MIME check always runs,
// whatever the other checks found: the declared extension is
// attacker-controlled and is never trusted on its own.
func (s *EvidenceService) AttachProof(ctx context.Context, requestID, schoolID string, up ProofUpload) (*repository.PaymentProof, error) {
	req, err := s.subs.GetByID(ctx, requestID, schoolID)
	if err != nil {
		return nil, err
	}

	if req.Status != workflow.SubPendingPayment && req.Status != workflow.SubRejected {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"cannot attach evidence to a request in status %q", req.Status)
	}

	mtype, verr := s.validateUpload(up)
	if verr.HasViolations() {
		return nil, verr
	}

	// The file must exist before any row references it. An orphaned file
	// after a later failure is a maintenance concern; a dangling reference is
	// a correctness bug.
	storedPath, err := s.files.Write(ctx, schoolID, requestID, strings.TrimPrefix(mtype.Extension(), "."), up.Content)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to store evidence file")
	}

	proof := &repository.PaymentProof{
		RequestID:      requestID,
		SchoolID:       schoolID,
		UploadedBy:     up.ActorID,
		TransferDate:   up.TransferDate,
		AmountDeclared: up.DeclaredAmount,
		FilePath:       storedPath,
	}
	if err := s.proofs.Insert(ctx, proof); err != nil {
		return nil, err
	}

	// A rejected request first re-enters pending_payment (resubmission),
	// then moves to under_review like a first submission.
	if req.Status == workflow.SubRejected {
		reason := "payment proof resubmitted"
		if _, err := s.engine.TransitionSubscription(ctx, requestID, schoolID, workflow.SubPendingPayment, up.ActorID, &reason); err != nil {
			return nil, err
		}
	}
	reason := "payment proof submitted"
	if _, err := s.engine.TransitionSubscription(ctx, requestID, schoolID, workflow.SubUnderReview, up.ActorID, &reason); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditRecord{
		EntityType: workflow.EntitySubscription,
		EntityID:   requestID,
		SchoolID:   schoolID,
		Action:     repository.AuditActionProofUploaded,
		ActorID:    up.ActorID,
		Metadata: map[string]any{
			"proof_id":        proof.ID,
			"file_path":       storedPath,
			"declared_amount": up.DeclaredAmount.String(),
			"mime_type":       mtype.String(),
		},
	})

	s.log.Info().
		Str("request_id", requestID).
		Str("school_id", schoolID).
		Str("proof_id", proof.ID).
		Str("mime_type", mtype.String()).
		Str("declared_amount", up.DeclaredAmount.String()).
		Msg("Payment proof attached")

	if s.notifier != nil {
		s.notifier.Publish(ctx, client.WorkflowEvent{
			EventType:  "proof_submitted",
			EntityType: string(workflow.EntitySubscription),
			EntityID:   requestID,
			SchoolID:   schoolID,
			ActorID:    up.ActorID,
			Payload:    map[string]any{"proof_id": proof.ID},
		})
	}

	return proof, nil
}

// validateUpload collects every violation. The returned MIME type is the
// sniffed one, valid whenever the content is non-empty.
func (s *EvidenceService) validateUpload(up ProofUpload) (*mimetype.MIME, *apperrors.ValidationError) {
	verr := &apperrors.ValidationError{}

	if !up.DeclaredAmount.IsPositive() {
		verr.Add("declared_amount", "declared amount must be positive")
	}
	if up.TransferDate.IsZero() {
		verr.Add("transfer_date", "transfer date is required")
	}

	ext := strings.ToLower(filepath.Ext(up.FileName))
	if !allowedExtensions[ext] {
		verr.Add("file", "file extension must be one of jpg, jpeg, png, pdf")
	}
	if len(up.Content) == 0 {
		verr.Add("file", "file is empty")
	}
	if int64(len(up.Content)) > s.maxUploadBytes {
		verr.Add("file", "file exceeds the 5 MiB size limit")
	}

	// Always sniff, even when earlier checks failed: a disguised payload must
	// never get as far as storage.
	mtype := mimetype.Detect(up.Content)
	if !mimetype.EqualsAny(mtype.String(), allowedMIMETypes...) {
		verr.Add("file", "file content must be a JPEG, PNG, or PDF (detected "+mtype.String()+")")
	}

	return mtype, verr
}

// ListProofs returns all proofs for a request, newest first.
func (s *EvidenceService) ListProofs(ctx context.Context, requestID, schoolID string) ([]*repository.PaymentProof, error) {
	if _, err := s.subs.GetByID(ctx, requestID, schoolID); err != nil {
		return nil, err
	}
	return s.proofs.ListByRequest(ctx, requestID, schoolID)
}

// Review decisions.
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// ReviewProof records the reviewer's decision on the newest proof and moves
// the request to approved or rejected through the workflow engine.
func (s *EvidenceService) ReviewProof(ctx context.Context, requestID, schoolID, decision, actorID string, note *string) (*repository.SubscriptionRequest, error) {
	var outcome string
	var target workflow.Status
	switch decision {
	case ReviewApprove:
		outcome, target = repository.ProofAccepted, workflow.SubApproved
	case ReviewReject:
		outcome, target = repository.ProofRejected, workflow.SubRejected
	default:
		return nil, apperrors.InvalidInput("decision", "decision must be approve or reject")
	}
	if decision == ReviewReject && (note == nil || strings.TrimSpace(*note) == "") {
		return nil, apperrors.InvalidInput("note", "a rejection note is required")
	}

	req, err := s.subs.GetByID(ctx, requestID, schoolID)
	if err != nil {
		return nil, err
	}
	if req.Status != workflow.SubUnderReview {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"cannot review a request in status %q", req.Status)
	}

	latest, err := s.proofs.GetLatest(ctx, requestID, schoolID)
	if err != nil {
		return nil, err
	}

	// Marking the proof first serializes concurrent reviewers: the
	// conditional update admits exactly one winner.
	if err := s.proofs.MarkReviewed(ctx, latest.ID, schoolID, outcome, actorID, note); err != nil {
		return nil, err
	}

	updated, err := s.engine.TransitionSubscription(ctx, requestID, schoolID, target, actorID, note)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditRecord{
		EntityType: workflow.EntitySubscription,
		EntityID:   requestID,
		SchoolID:   schoolID,
		Action:     repository.AuditActionProofReviewed,
		ActorID:    actorID,
		Reason:     note,
		Metadata:   map[string]any{"proof_id": latest.ID, "outcome": outcome},
	})

	s.log.Info().
		Str("request_id", requestID).
		Str("proof_id", latest.ID).
		Str("outcome", outcome).
		Str("actor_id", actorID).
		Msg("Payment proof reviewed")

	if s.notifier != nil {
		s.notifier.Publish(ctx, client.WorkflowEvent{
			EventType:  "proof_reviewed",
			EntityType: string(workflow.EntitySubscription),
			EntityID:   requestID,
			SchoolID:   schoolID,
			ActorID:    actorID,
			ToStatus:   string(target),
			Payload:    map[string]any{"proof_id": latest.ID, "outcome": outcome},
		})
	}

	return updated, nil
}

// appendAudit writes a non-transition audit entry, logging a warning on
// failure rather than failing the operation.
func (s *EvidenceService) appendAudit(ctx context.Context, rec *repository.AuditRecord) {
	if err := s.audit.Append(ctx, rec); err != nil {
		s.log.Warn().Err(err).
			Str("entity_id", rec.EntityID).
			Str("action", rec.Action).
			Msg("Failed to write audit log entry")
	}
}
