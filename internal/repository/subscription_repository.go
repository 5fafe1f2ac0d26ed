package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/database"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// SubscriptionRepository handles subscription request persistence, scoped by
// school_id on every query.
type SubscriptionRepository struct {
	db *database.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, school_id, student_id, plan_name, period, expected_amount::text, status, created_by, created_at, updated_at`

// Create inserts a subscription request in pending_payment status and appends
// its creation audit row in the same transaction.
func (r *SubscriptionRepository) Create(ctx context.Context, req *SubscriptionRequest, audit *AuditRecord) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO subscription_requests (school_id, student_id, plan_name, period, expected_amount, created_by)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
			RETURNING id, status, created_at, updated_at
		`

		var status string
		err := tx.QueryRow(ctx, query,
			req.SchoolID,
			req.StudentID,
			req.PlanName,
			req.Period,
			req.ExpectedAmount.String(),
			req.CreatedBy,
		).Scan(&req.ID, &status, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create subscription request")
		}
		req.Status = workflow.Status(status)

		audit.EntityID = req.ID
		return AppendTx(ctx, tx, audit)
	})
}

// GetByID retrieves a subscription request scoped by school.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id, schoolID string) (*SubscriptionRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscription_requests WHERE id = $1 AND school_id = $2`, subscriptionColumns)

	req, err := scanSubscription(r.db.QueryRow(ctx, query, id, schoolID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("subscription request", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get subscription request")
	}
	return req, nil
}

// List returns a school's subscription requests, optionally filtered by status.
func (r *SubscriptionRepository) List(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*SubscriptionRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscription_requests WHERE school_id = $1`, subscriptionColumns)
	args := []any{schoolID}

	if status != nil {
		query += ` AND status = $2::subscription_status`
		args = append(args, string(*status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list subscription requests")
	}
	defer rows.Close()

	var reqs []*SubscriptionRequest
	for rows.Next() {
		req, err := scanSubscription(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan subscription request")
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// TransitionStatus applies a validated status change conditionally on the
// expected current status, with the audit row in the same transaction. Zero
// rows affected with the row still present means a concurrent transition won.
func (r *SubscriptionRepository) TransitionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *AuditRecord) (*SubscriptionRequest, error) {
	var updated *SubscriptionRequest

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE subscription_requests
			SET status = $4::subscription_status,
			    updated_at = NOW()
			WHERE id = $1 AND school_id = $2 AND status = $3::subscription_status
			RETURNING %s`, subscriptionColumns)

		req, err := scanSubscription(tx.QueryRow(ctx, query, id, schoolID, string(from), string(to)))
		if err == pgx.ErrNoRows {
			return transitionFailure(ctx, tx, "subscription_requests", "subscription request", id, schoolID, from)
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update subscription status")
		}

		updated = req
		return AppendTx(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type subscriptionScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(sc subscriptionScanner) (*SubscriptionRequest, error) {
	req := &SubscriptionRequest{}
	var amountText, status string

	err := sc.Scan(
		&req.ID,
		&req.SchoolID,
		&req.StudentID,
		&req.PlanName,
		&req.Period,
		&amountText,
		&status,
		&req.CreatedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("parse expected amount %q: %w", amountText, err)
	}
	req.ExpectedAmount = amount
	req.Status = workflow.Status(status)
	return req, nil
}
