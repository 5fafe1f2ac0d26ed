package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/database"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// PaymentRepository records confirmed payments and serves the aggregates the
// reconciliation calculator reads. Payments are never updated or deleted.
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Insert records one confirmed payment.
func (r *PaymentRepository) Insert(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments
		    (school_id, entity_type, entity_id, payer_id, amount, paid_at, method, reference, created_by)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		p.SchoolID,
		string(p.EntityType),
		p.EntityID,
		p.PayerID,
		p.Amount.String(),
		p.PaidAt,
		p.Method,
		p.Reference,
		p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to record payment")
	}
	return nil
}

// SumForEntity returns the total confirmed amount paid against an entity.
func (r *PaymentRepository) SumForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM payments
		WHERE school_id = $1 AND entity_type = $2 AND entity_id = $3
	`

	var totalText string
	err := r.db.QueryRow(ctx, query, schoolID, string(entityType), entityID).Scan(&totalText)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to sum payments")
	}

	total, err := decimal.NewFromString(totalText)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse payment total %q: %w", totalText, err)
	}
	return total, nil
}

// CountForEntity returns how many confirmed payments exist for an entity.
// The delete-downgrade policy checks this before allowing a hard delete.
func (r *PaymentRepository) CountForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM payments
		WHERE school_id = $1 AND entity_type = $2 AND entity_id = $3
	`

	var count int64
	err := r.db.QueryRow(ctx, query, schoolID, string(entityType), entityID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count payments")
	}
	return count, nil
}

// ListForEntity returns confirmed payments against an entity, oldest first.
func (r *PaymentRepository) ListForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) ([]*Payment, error) {
	query := `
		SELECT id, school_id, entity_type, entity_id, payer_id,
		       amount::text, paid_at, method, reference, created_by, created_at
		FROM payments
		WHERE school_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY paid_at ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, schoolID, string(entityType), entityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list payments")
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p := &Payment{}
		var entityTypeText, amountText string

		err := rows.Scan(
			&p.ID,
			&p.SchoolID,
			&entityTypeText,
			&p.EntityID,
			&p.PayerID,
			&amountText,
			&p.PaidAt,
			&p.Method,
			&p.Reference,
			&p.CreatedBy,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan payment")
		}

		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, fmt.Errorf("parse payment amount %q: %w", amountText, err)
		}
		p.Amount = amount
		p.EntityType = workflow.EntityType(entityTypeText)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
