package repository

import (
	"context"
	"database/sql"
	"encoding/json"
)

// Audit event kinds written by the core.  Checkout completion logs
// every waitlist transition it performs, and any checkout at least 30
// minutes late is recorded regardless of the fee.
const (
	AuditWaitlistCancelled = "WAITLIST_CANCELLED"
	AuditLateCheckout      = "LATE_CHECKOUT"
)

// AuditRepo appends rows to the audit_events trail.  The trail is
// write-only from the core's perspective; it exists so operators can
// reconstruct why a waitlist entry disappeared or why a customer was
// fined.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns a new AuditRepo bound to the given database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// InsertTx appends one audit event inside the caller's transaction so
// the event commits or rolls back together with the change it
// documents.  detail must be a JSON-marshalable value.
func (r *AuditRepo) InsertTx(ctx context.Context, tx *sql.Tx, kind string, refID uint64, detail any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_events (kind, ref_id, detail) VALUES (?, ?, ?)`,
		kind, refID, payload)
	return err
}
