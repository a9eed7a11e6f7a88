package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// CheckoutRepo provides data access to the checkout_requests table.
// Claim and completion read the row with FOR UPDATE SKIP LOCKED so
// two staff members working concurrently never block each other while
// still preventing a double claim; claim expiry is evaluated lazily
// on the next claim attempt rather than by any timer.
type CheckoutRepo struct {
	db *sql.DB
}

// NewCheckoutRepo returns a new CheckoutRepo bound to the given database.
func NewCheckoutRepo(db *sql.DB) *CheckoutRepo { return &CheckoutRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *CheckoutRepo) DB() *sql.DB { return r.db }

const checkoutColumns = `id, block_id, key_tag, checklist, late_minutes, fee_cents, ban_applied,
 status, claimed_by, claimed_at, claim_expires_at, items_confirmed, fee_paid, created_at, updated_at`

func scanCheckout(row interface{ Scan(...any) error }) (*model.CheckoutRequest, error) {
	var cr model.CheckoutRequest
	var keyTag sql.NullString
	var checklist []byte
	var claimedBy sql.NullInt64
	var claimedAt, claimExpires sql.NullTime
	if err := row.Scan(&cr.ID, &cr.BlockID, &keyTag, &checklist, &cr.LateMinutes,
		&cr.FeeCents, &cr.BanApplied, &cr.Status, &claimedBy, &claimedAt,
		&claimExpires, &cr.ItemsConfirmed, &cr.FeePaid, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
		return nil, err
	}
	if keyTag.Valid {
		v := keyTag.String
		cr.KeyTag = &v
	}
	if len(checklist) > 0 {
		cr.Checklist = json.RawMessage(checklist)
	}
	if claimedBy.Valid {
		v := uint64(claimedBy.Int64)
		cr.ClaimedBy = &v
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		cr.ClaimedAt = &t
	}
	if claimExpires.Valid {
		t := claimExpires.Time
		cr.ClaimExpiresAt = &t
	}
	return &cr, nil
}

// GetByID returns one request or ErrNotFound.
func (r *CheckoutRepo) GetByID(ctx context.Context, id uint64) (*model.CheckoutRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_requests WHERE id = ?`, id)
	cr, err := scanCheckout(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return cr, err
}

// GetForUpdateTx reads a request with FOR UPDATE SKIP LOCKED.  A row
// held by a concurrent transaction is invisible under SKIP LOCKED, so
// the absence of a row is disambiguated with a plain existence check:
// locked elsewhere means ErrConflict, truly absent means ErrNotFound.
func (r *CheckoutRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.CheckoutRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+checkoutColumns+` FROM checkout_requests WHERE id = ? FOR UPDATE SKIP LOCKED`, id)
	cr, err := scanCheckout(row)
	if err == nil {
		return cr, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	var exists uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM checkout_requests WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrConflict
}

// CreateTx submits a new checkout request for an occupancy.  An
// occupancy may have at most one open (SUBMITTED/CLAIMED) request;
// a duplicate yields ErrConflict.  Late minutes, fee and ban flag are
// computed by the caller at submission time and frozen on the row.
func (r *CheckoutRepo) CreateTx(ctx context.Context, tx *sql.Tx, blockID uint64, keyTag *string, checklist json.RawMessage, lateMinutes int, feeCents int64, banApplied bool) (uint64, error) {
	var open uint64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM checkout_requests
		 WHERE block_id = ? AND status IN ('SUBMITTED','CLAIMED')
		 FOR UPDATE`,
		blockID).Scan(&open)
	if err == nil {
		return 0, ErrConflict
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO checkout_requests
		 (block_id, key_tag, checklist, late_minutes, fee_cents, ban_applied, status)
		 VALUES (?, ?, ?, ?, ?, ?, 'SUBMITTED')`,
		blockID, keyTag, []byte(checklist), lateMinutes, feeCents, banApplied)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ClaimTx takes exclusive ownership of a request for one staff
// member.  A SUBMITTED request may always be claimed; a CLAIMED one
// only after its previous claim has lapsed (lazy expiry, no timers).
// A live claim held by anyone, including the caller, yields
// ErrConflict.  The claim lasts model.ClaimTTL from now.
func (r *CheckoutRepo) ClaimTx(ctx context.Context, tx *sql.Tx, id, staffID uint64, now time.Time) (*model.CheckoutRequest, error) {
	cr, err := r.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	switch cr.Status {
	case model.CheckoutSubmitted:
		// first claim
	case model.CheckoutClaimed:
		if !cr.ClaimExpired(now) {
			return nil, ErrConflict
		}
	default:
		return nil, ErrConflict
	}
	expires := now.UTC().Add(model.ClaimTTL)
	if _, err := tx.ExecContext(ctx,
		`UPDATE checkout_requests
		 SET status = 'CLAIMED', claimed_by = ?, claimed_at = ?, claim_expires_at = ?, updated_at = NOW()
		 WHERE id = ?`,
		staffID, now.UTC(), expires, id); err != nil {
		return nil, err
	}
	claimedAt := now.UTC()
	cr.Status = model.CheckoutClaimed
	cr.ClaimedBy = &staffID
	cr.ClaimedAt = &claimedAt
	cr.ClaimExpiresAt = &expires
	return cr, nil
}

// SetItemsConfirmedTx marks the returned items as checked.  Only the
// current claimant may do this; anyone else gets ErrForbidden.
func (r *CheckoutRepo) SetItemsConfirmedTx(ctx context.Context, tx *sql.Tx, id, staffID uint64, now time.Time) (*model.CheckoutRequest, error) {
	return r.setClaimantFlagTx(ctx, tx, id, staffID, now, "items_confirmed")
}

// SetFeePaidTx marks the late fee as settled at the desk.  Only the
// current claimant may do this.
func (r *CheckoutRepo) SetFeePaidTx(ctx context.Context, tx *sql.Tx, id, staffID uint64, now time.Time) (*model.CheckoutRequest, error) {
	return r.setClaimantFlagTx(ctx, tx, id, staffID, now, "fee_paid")
}

func (r *CheckoutRepo) setClaimantFlagTx(ctx context.Context, tx *sql.Tx, id, staffID uint64, now time.Time, column string) (*model.CheckoutRequest, error) {
	cr, err := r.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != model.CheckoutClaimed {
		return nil, ErrConflict
	}
	if !cr.ClaimedByStaff(staffID) {
		return nil, ErrForbidden
	}
	// column is one of two fixed identifiers, never user input
	if _, err := tx.ExecContext(ctx,
		`UPDATE checkout_requests SET `+column+` = TRUE, updated_at = NOW() WHERE id = ?`,
		id); err != nil {
		return nil, err
	}
	switch column {
	case "items_confirmed":
		cr.ItemsConfirmed = true
	case "fee_paid":
		cr.FeePaid = true
	}
	return cr, nil
}

// MarkVerifiedTx is the final status flip of completion.  The caller
// has already validated every completion guard on the locked row; a
// zero row count here means the row changed underneath us and the
// transaction must roll back.
func (r *CheckoutRepo) MarkVerifiedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE checkout_requests SET status = 'VERIFIED', updated_at = NOW()
		 WHERE id = ? AND status = 'CLAIMED'`,
		id)
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
