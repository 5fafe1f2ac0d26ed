package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/database"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// AuditRepository appends and reads immutable workflow audit rows. The table
// carries a delete-prevention trigger, so Append is the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsertQuery = `
	INSERT INTO workflow_audit_log
	    (entity_type, entity_id, school_id,
	     action, from_status, to_status,
	     actor_id, reason, metadata)
	VALUES ($1, $2, $3,
	        $4, $5, $6,
	        $7, $8, $9)
	RETURNING id, created_at
`

// Append inserts one audit entry outside any caller transaction.
func (r *AuditRepository) Append(ctx context.Context, rec *AuditRecord) error {
	metadataJSON, err := marshalAuditMetadata(rec)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, auditInsertQuery,
		string(rec.EntityType),
		rec.EntityID,
		rec.SchoolID,
		rec.Action,
		rec.FromStatus,
		rec.ToStatus,
		rec.ActorID,
		rec.Reason,
		metadataJSON,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// AppendTx inserts one audit entry within an open transaction. The workflow
// engine uses this so a status change and its audit row commit or roll back
// together.
func AppendTx(ctx context.Context, tx pgx.Tx, rec *AuditRecord) error {
	metadataJSON, err := marshalAuditMetadata(rec)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, auditInsertQuery,
		string(rec.EntityType),
		rec.EntityID,
		rec.SchoolID,
		rec.Action,
		rec.FromStatus,
		rec.ToStatus,
		rec.ActorID,
		rec.Reason,
		metadataJSON,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// History returns the full audit trail for an entity, ordered oldest-first
// with the surrogate id breaking created_at ties. The result is a snapshot at
// call time.
func (r *AuditRepository) History(ctx context.Context, entityType workflow.EntityType, entityID, schoolID string) ([]*AuditRecord, error) {
	query := `
		SELECT id, entity_type, entity_id, school_id,
		       action, from_status, to_status,
		       actor_id, reason, metadata, created_at
		FROM workflow_audit_log
		WHERE entity_type = $1 AND entity_id = $2 AND school_id = $3
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, string(entityType), entityID, schoolID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to read audit history")
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type auditScanner interface {
	Scan(dest ...any) error
}

func scanAuditRecord(sc auditScanner) (*AuditRecord, error) {
	rec := &AuditRecord{}
	var entityType string
	var metadataJSON []byte

	err := sc.Scan(
		&rec.ID,
		&entityType,
		&rec.EntityID,
		&rec.SchoolID,
		&rec.Action,
		&rec.FromStatus,
		&rec.ToStatus,
		&rec.ActorID,
		&rec.Reason,
		&metadataJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan audit entry")
	}

	rec.EntityType = workflow.EntityType(entityType)
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return rec, nil
}

func marshalAuditMetadata(rec *AuditRecord) ([]byte, error) {
	if rec.Metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal audit metadata")
	}
	return data, nil
}
