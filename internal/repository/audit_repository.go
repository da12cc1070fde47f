package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quizbank/importer/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// auditRepository implements AuditRepository on pgxpool.
type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository wires an append-only audit log backed by pgxpool.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

// Record appends one audit entry. Existing entries are never touched.
func (r *auditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal audit changes: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO audit_log (id, record_id, record_code, action, actor_id, actor_name, changes, batch_id, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID,
		entry.RecordID,
		entry.RecordCode,
		string(entry.Action),
		entry.Actor.ID,
		entry.Actor.Name,
		changesJSON,
		entry.BatchID,
		entry.Reason,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

// ListByBatch returns entries for one batch, oldest first.
func (r *auditRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	return r.list(ctx, `batch_id = $1`, batchID, limit)
}

// ListByRecord returns entries for one record, oldest first.
func (r *auditRepository) ListByRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	return r.list(ctx, `record_id = $1`, recordID, limit)
}

// ListByActor returns entries written on behalf of one actor, oldest first.
func (r *auditRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]domain.AuditEntry, error) {
	return r.list(ctx, `actor_id = $1`, actorID, limit)
}

func (r *auditRepository) list(ctx context.Context, where string, arg any, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, record_id, record_code, action, actor_id, actor_name, changes, batch_id, reason, created_at
		 FROM audit_log
		 WHERE `+where+`
		 ORDER BY created_at ASC
		 LIMIT $2`,
		arg,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		entry, scanErr := scanAuditEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", rowsErr)
	}

	return entries, nil
}

func scanAuditEntry(row pgx.Row) (domain.AuditEntry, error) {
	var (
		entry       domain.AuditEntry
		action      string
		changesJSON []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.RecordID,
		&entry.RecordCode,
		&action,
		&entry.Actor.ID,
		&entry.Actor.Name,
		&changesJSON,
		&entry.BatchID,
		&entry.Reason,
		&entry.CreatedAt,
	); err != nil {
		return domain.AuditEntry{}, err
	}

	entry.Action = domain.AuditAction(action)
	if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("failed to unmarshal audit changes: %w", err)
	}

	return entry, nil
}
