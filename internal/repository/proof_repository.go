package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/database"
)

// ProofRepository persists payment proof rows. Proofs are append-only per
// request: resubmission inserts a new row, older rows stay for audit.
type ProofRepository struct {
	db *database.DB
}

// NewProofRepository creates a new ProofRepository.
func NewProofRepository(db *database.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

const proofColumns = `id, request_id, school_id, uploaded_by, transfer_date, amount_declared::text, file_path, status, review_note, reviewed_by, reviewed_at, created_at`

// Insert stores a new proof row in under_review sub-status.
func (r *ProofRepository) Insert(ctx context.Context, proof *PaymentProof) error {
	query := `
		INSERT INTO payment_proofs
		    (request_id, school_id, uploaded_by, transfer_date, amount_declared, file_path)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING id, status, created_at
	`

	err := r.db.QueryRow(ctx, query,
		proof.RequestID,
		proof.SchoolID,
		proof.UploadedBy,
		proof.TransferDate,
		proof.AmountDeclared.String(),
		proof.FilePath,
	).Scan(&proof.ID, &proof.Status, &proof.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to insert payment proof")
	}
	return nil
}

// ListByRequest returns every proof for a request, newest first.
func (r *ProofRepository) ListByRequest(ctx context.Context, requestID, schoolID string) ([]*PaymentProof, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_proofs
		WHERE request_id = $1 AND school_id = $2
		ORDER BY created_at DESC, id DESC`, proofColumns)

	rows, err := r.db.Query(ctx, query, requestID, schoolID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list payment proofs")
	}
	defer rows.Close()

	var proofs []*PaymentProof
	for rows.Next() {
		proof, err := scanProof(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan payment proof")
		}
		proofs = append(proofs, proof)
	}
	return proofs, rows.Err()
}

// GetLatest returns the newest proof for a request, or a not-found error when
// no proof has been uploaded yet.
func (r *ProofRepository) GetLatest(ctx context.Context, requestID, schoolID string) (*PaymentProof, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_proofs
		WHERE request_id = $1 AND school_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, proofColumns)

	proof, err := scanProof(r.db.QueryRow(ctx, query, requestID, schoolID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("payment proof for request", requestID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get payment proof")
	}
	return proof, nil
}

// MarkReviewed stamps the review outcome on a proof that is still
// under_review. A proof reviewed concurrently reports a conflict.
func (r *ProofRepository) MarkReviewed(ctx context.Context, id, schoolID, outcome, reviewedBy string, note *string) error {
	query := `
		UPDATE payment_proofs
		SET status      = $3::proof_status,
		    reviewed_by = $4,
		    reviewed_at = NOW(),
		    review_note = $5
		WHERE id = $1 AND school_id = $2 AND status = 'under_review'::proof_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, schoolID, outcome, reviewedBy, note).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.New(apperrors.ErrCodeConflict, "proof not found or already reviewed")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to mark proof reviewed")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type proofScanner interface {
	Scan(dest ...any) error
}

func scanProof(sc proofScanner) (*PaymentProof, error) {
	proof := &PaymentProof{}
	var amountText string
	var transferDate time.Time

	err := sc.Scan(
		&proof.ID,
		&proof.RequestID,
		&proof.SchoolID,
		&proof.UploadedBy,
		&transferDate,
		&amountText,
		&proof.FilePath,
		&proof.Status,
		&proof.ReviewNote,
		&proof.ReviewedBy,
		&proof.ReviewedAt,
		&proof.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("parse declared amount %q: %w", amountText, err)
	}
	proof.AmountDeclared = amount
	proof.TransferDate = transferDate
	return proof, nil
}
