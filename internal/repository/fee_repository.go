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

// FeeRepository handles fee structure persistence. Every query is scoped by
// school_id; an out-of-scope row is indistinguishable from a missing one.
type FeeRepository struct {
	db *database.DB
}

// NewFeeRepository creates a new FeeRepository.
func NewFeeRepository(db *database.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

const feeColumns = `id, school_id, name, class_name, period, amount::text, status, created_by, created_at, updated_at`

// Create inserts a fee structure in draft status and appends its creation
// audit row in the same transaction.
func (r *FeeRepository) Create(ctx context.Context, fee *FeeStructure, audit *AuditRecord) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO fee_structures (school_id, name, class_name, period, amount, created_by)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
			RETURNING id, status, created_at, updated_at
		`

		var status string
		err := tx.QueryRow(ctx, query,
			fee.SchoolID,
			fee.Name,
			fee.ClassName,
			fee.Period,
			fee.Amount.String(),
			fee.CreatedBy,
		).Scan(&fee.ID, &status, &fee.CreatedAt, &fee.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create fee structure")
		}
		fee.Status = workflow.Status(status)

		audit.EntityID = fee.ID
		return AppendTx(ctx, tx, audit)
	})
}

// GetByID retrieves a fee structure scoped by school.
func (r *FeeRepository) GetByID(ctx context.Context, id, schoolID string) (*FeeStructure, error) {
	query := fmt.Sprintf(`SELECT %s FROM fee_structures WHERE id = $1 AND school_id = $2`, feeColumns)

	fee, err := scanFee(r.db.QueryRow(ctx, query, id, schoolID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("fee structure", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get fee structure")
	}
	return fee, nil
}

// List returns a school's fee structures, optionally filtered by status.
func (r *FeeRepository) List(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*FeeStructure, error) {
	query := fmt.Sprintf(`SELECT %s FROM fee_structures WHERE school_id = $1`, feeColumns)
	args := []any{schoolID}

	if status != nil {
		query += ` AND status = $2::fee_status`
		args = append(args, string(*status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list fee structures")
	}
	defer rows.Close()

	var fees []*FeeStructure
	for rows.Next() {
		fee, err := scanFee(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan fee structure")
		}
		fees = append(fees, fee)
	}
	return fees, rows.Err()
}

// TransitionStatus applies a validated status change conditionally on the
// expected current status and appends the audit row in the same transaction.
// A concurrent writer that got there first leaves zero rows for the
// conditional update, which is reported as a conflict rather than a silent
// overwrite.
func (r *FeeRepository) TransitionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *AuditRecord) (*FeeStructure, error) {
	var updated *FeeStructure

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE fee_structures
			SET status = $4::fee_status,
			    updated_at = NOW()
			WHERE id = $1 AND school_id = $2 AND status = $3::fee_status
			RETURNING %s`, feeColumns)

		fee, err := scanFee(tx.QueryRow(ctx, query, id, schoolID, string(from), string(to)))
		if err == pgx.ErrNoRows {
			return transitionFailure(ctx, tx, "fee_structures", "fee structure", id, schoolID, from)
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update fee status")
		}

		updated = fee
		return AppendTx(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete hard-deletes a draft fee structure and records the deletion in the
// audit log atomically. Callers must have verified no payments exist.
func (r *FeeRepository) Delete(ctx context.Context, id, schoolID string, audit *AuditRecord) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM fee_structures
			WHERE id = $1 AND school_id = $2 AND status = 'draft'::fee_status
		`, id, schoolID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete fee structure")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.New(apperrors.ErrCodeConflict, "only draft fee structures can be deleted")
		}

		return AppendTx(ctx, tx, audit)
	})
}

// transitionFailure decides whether a zero-row conditional update means the
// entity is missing (or out of scope) or that a concurrent transition won.
func transitionFailure(ctx context.Context, tx pgx.Tx, table, resource, id, schoolID string, expected workflow.Status) error {
	existsQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND school_id = $2)`, table)

	var exists bool
	if err := tx.QueryRow(ctx, existsQuery, id, schoolID).Scan(&exists); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check entity existence")
	}
	if !exists {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Newf(apperrors.ErrCodeConflict,
		"%s %q changed concurrently: status is no longer %q", resource, id, expected)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type feeScanner interface {
	Scan(dest ...any) error
}

func scanFee(sc feeScanner) (*FeeStructure, error) {
	fee := &FeeStructure{}
	var amountText, status string

	err := sc.Scan(
		&fee.ID,
		&fee.SchoolID,
		&fee.Name,
		&fee.ClassName,
		&fee.Period,
		&amountText,
		&status,
		&fee.CreatedBy,
		&fee.CreatedAt,
		&fee.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("parse fee amount %q: %w", amountText, err)
	}
	fee.Amount = amount
	fee.Status = workflow.Status(status)
	return fee, nil
}
