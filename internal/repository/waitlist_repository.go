package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// WaitlistRepo provides data access to the waitlist_entries table.
// Entries are created when a customer joins the waitlist, pinned to a
// concrete resource when an offer is made, and cancelled in bulk when
// the customer's visit checks out.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the given database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const waitlistColumns = `id, customer_id, visit_id, desired_tier, backup_tier, status, reserved_resource_id, created_at, updated_at`

func scanWaitlistEntry(row interface{ Scan(...any) error }) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var visitID, reserved sql.NullInt64
	var backup sql.NullString
	if err := row.Scan(&e.ID, &e.CustomerID, &visitID, &e.DesiredTier, &backup,
		&e.Status, &reserved, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if visitID.Valid {
		v := uint64(visitID.Int64)
		e.VisitID = &v
	}
	if backup.Valid {
		b := backup.String
		e.BackupTier = &b
	}
	if reserved.Valid {
		r := uint64(reserved.Int64)
		e.ReservedResourceID = &r
	}
	return &e, nil
}

// Create inserts a new ACTIVE waitlist entry and returns its ID.
func (r *WaitlistRepo) Create(ctx context.Context, customerID uint64, visitID *uint64, desiredTier string, backupTier *string) (uint64, error) {
	return insertWaitlistEntry(ctx, r.db.ExecContext, customerID, visitID, desiredTier, backupTier)
}

// CreateTx is Create inside the caller's transaction, used when the
// entry must commit together with the command that routed the customer
// to the waitlist.
func (r *WaitlistRepo) CreateTx(ctx context.Context, tx *sql.Tx, customerID uint64, visitID *uint64, desiredTier string, backupTier *string) (uint64, error) {
	return insertWaitlistEntry(ctx, tx.ExecContext, customerID, visitID, desiredTier, backupTier)
}

func insertWaitlistEntry(ctx context.Context, exec func(context.Context, string, ...any) (sql.Result, error), customerID uint64, visitID *uint64, desiredTier string, backupTier *string) (uint64, error) {
	res, err := exec(ctx,
		`INSERT INTO waitlist_entries (customer_id, visit_id, desired_tier, backup_tier, status)
		 VALUES (?, ?, ?, ?, 'ACTIVE')`,
		customerID, visitID, desiredTier, backupTier)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID returns one entry or ErrNotFound.
func (r *WaitlistRepo) GetByID(ctx context.Context, id uint64) (*model.WaitlistEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ?`, id)
	e, err := scanWaitlistEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListOpen returns all ACTIVE and OFFERED entries, oldest first.  Used
// by the front desk board; read-only.
func (r *WaitlistRepo) ListOpen(ctx context.Context) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE status IN ('ACTIVE','OFFERED')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.WaitlistEntry, 0)
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// OfferTx pins an allocated resource to an ACTIVE entry, moving it to
// OFFERED.  The pinned resource is excluded from every future
// allocation until the offer is accepted or the entry cancelled.
// Offering a non-ACTIVE entry is a stale transition: ErrConflict.
func (r *WaitlistRepo) OfferTx(ctx context.Context, tx *sql.Tx, entryID, resourceID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries
		 SET status = 'OFFERED', reserved_resource_id = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'ACTIVE'`,
		resourceID, entryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// CancelledEntry reports one waitlist cancellation performed by
// CancelForVisitTx so that callers can audit the state transition.
type CancelledEntry struct {
	ID         uint64
	FromStatus string
}

// CancelForVisitTx cancels every ACTIVE and OFFERED entry tied to the
// given visit and returns what was cancelled, together with the status
// each entry left.  Called from checkout completion, inside its
// transaction.
func (r *WaitlistRepo) CancelForVisitTx(ctx context.Context, tx *sql.Tx, visitID uint64) ([]CancelledEntry, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, status FROM waitlist_entries
		 WHERE visit_id = ? AND status IN ('ACTIVE','OFFERED')
		 FOR UPDATE`,
		visitID)
	if err != nil {
		return nil, err
	}
	var cancelled []CancelledEntry
	for rows.Next() {
		var e CancelledEntry
		if err := rows.Scan(&e.ID, &e.FromStatus); err != nil {
			rows.Close()
			return nil, err
		}
		cancelled = append(cancelled, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(cancelled) == 0 {
		return nil, nil
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE waitlist_entries
		 SET status = 'CANCELLED', reserved_resource_id = NULL, updated_at = NOW()
		 WHERE visit_id = ? AND status IN ('ACTIVE','OFFERED')`,
		visitID)
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}
