package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the state change an audit entry records.
type AuditAction string

const (
	AuditActionCreated AuditAction = "CREATED"
	AuditActionUpdated AuditAction = "UPDATED"
	AuditActionDeleted AuditAction = "DELETED"
)

// FieldChange captures one before/after pair for UPDATED entries.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// AuditEntry is one immutable line in the audit log. Entries are only ever
// appended; rollback writes compensating DELETED entries rather than erasing
// the CREATED ones.
type AuditEntry struct {
	ID         uuid.UUID     `json:"id"`
	RecordID   uuid.UUID     `json:"record_id"`
	RecordCode string        `json:"record_code"`
	Action     AuditAction   `json:"action"`
	Actor      Actor         `json:"actor"`
	Changes    []FieldChange `json:"changes"`
	BatchID    uuid.UUID     `json:"batch_id"`
	Reason     string        `json:"reason,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewCreationAudit records a bulk-created question. Changes stay empty for
// bulk creates.
func NewCreationAudit(q Question, actor Actor, batchID uuid.UUID) AuditEntry {
	return AuditEntry{
		ID:         uuid.New(),
		RecordID:   q.ID,
		RecordCode: q.Code,
		Action:     AuditActionCreated,
		Actor:      actor,
		Changes:    []FieldChange{},
		BatchID:    batchID,
		CreatedAt:  time.Now(),
	}
}

// NewDeletionAudit records a compensating delete performed during rollback.
func NewDeletionAudit(recordID uuid.UUID, recordCode string, actor Actor, batchID uuid.UUID, reason string) AuditEntry {
	return AuditEntry{
		ID:         uuid.New(),
		RecordID:   recordID,
		RecordCode: recordCode,
		Action:     AuditActionDeleted,
		Actor:      actor,
		Changes:    []FieldChange{},
		BatchID:    batchID,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
}
