package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// LaneSessionRepo provides data access to the lane_sessions table.
// The database row is the only source of truth for a session: nothing
// is cached in memory between requests, and the one-open-session-per-
// lane rule is enforced here inside the creating transaction rather
// than by any process-wide registry.
type LaneSessionRepo struct {
	db *sql.DB
}

// NewLaneSessionRepo returns a new LaneSessionRepo bound to the given database.
func NewLaneSessionRepo(db *sql.DB) *LaneSessionRepo { return &LaneSessionRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *LaneSessionRepo) DB() *sql.DB { return r.db }

const sessionColumns = `id, lane_id, status, customer_id, desired_rental_type,
 proposed_rental_type, proposed_by, confirmed_rental_type, confirmed_by,
 resource_kind, resource_id, payment_intent_id, quote, membership_intent,
 past_due_bypass, kiosk_ack_at, agreement_signed_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*model.LaneSession, error) {
	var s model.LaneSession
	var customerID, resourceID, intentID sql.NullInt64
	var desired, proposed, proposedBy, confirmed, confirmedBy, kind sql.NullString
	var quote []byte
	var kioskAck, signedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.LaneID, &s.Status, &customerID, &desired,
		&proposed, &proposedBy, &confirmed, &confirmedBy,
		&kind, &resourceID, &intentID, &quote, &s.MembershipIntent,
		&s.PastDueBypass, &kioskAck, &signedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if customerID.Valid {
		v := uint64(customerID.Int64)
		s.CustomerID = &v
	}
	if desired.Valid {
		v := desired.String
		s.DesiredRentalType = &v
	}
	if proposed.Valid {
		v := proposed.String
		s.ProposedRentalType = &v
	}
	if proposedBy.Valid {
		v := proposedBy.String
		s.ProposedBy = &v
	}
	if confirmed.Valid {
		v := confirmed.String
		s.ConfirmedRentalType = &v
	}
	if confirmedBy.Valid {
		v := confirmedBy.String
		s.ConfirmedBy = &v
	}
	if kind.Valid {
		v := kind.String
		s.ResourceKind = &v
	}
	if resourceID.Valid {
		v := uint64(resourceID.Int64)
		s.ResourceID = &v
	}
	if intentID.Valid {
		v := uint64(intentID.Int64)
		s.PaymentIntentID = &v
	}
	if len(quote) > 0 {
		s.Quote = json.RawMessage(quote)
	}
	if kioskAck.Valid {
		t := kioskAck.Time
		s.KioskAckAt = &t
	}
	if signedAt.Valid {
		t := signedAt.Time
		s.AgreementSignedAt = &t
	}
	return &s, nil
}

// GetByID returns one session or ErrNotFound.
func (r *LaneSessionRepo) GetByID(ctx context.Context, id uint64) (*model.LaneSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM lane_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// GetOpenByLane returns the lane's non-terminal session, or
// ErrNotFound when the lane is free.
func (r *LaneSessionRepo) GetOpenByLane(ctx context.Context, laneID uint64) (*model.LaneSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM lane_sessions
		 WHERE lane_id = ? AND status <> 'COMPLETED'`, laneID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// GetOpenByLaneTx is GetOpenByLane inside a transaction, locking the
// session row so concurrent commands against the same lane serialize.
func (r *LaneSessionRepo) GetOpenByLaneTx(ctx context.Context, tx *sql.Tx, laneID uint64) (*model.LaneSession, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM lane_sessions
		 WHERE lane_id = ? AND status <> 'COMPLETED'
		 FOR UPDATE`, laneID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// CreateTx opens a new ACTIVE session for the lane and customer.  The
// one-open-session-per-lane rule is checked inside the transaction: a
// second non-terminal session for the same lane yields ErrConflict.
func (r *LaneSessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, laneID, customerID uint64) (uint64, error) {
	var existing uint64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM lane_sessions WHERE lane_id = ? AND status <> 'COMPLETED' FOR UPDATE`,
		laneID).Scan(&existing)
	if err == nil {
		return 0, ErrConflict
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO lane_sessions (lane_id, status, customer_id) VALUES (?, 'ACTIVE', ?)`,
		laneID, customerID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ProposeTx records a rental-type proposal by one actor.  The first
// customer proposal also becomes the session's desired rental type.
// Confirmation state is cleared: a new proposal reopens negotiation.
func (r *LaneSessionRepo) ProposeTx(ctx context.Context, tx *sql.Tx, sessionID uint64, rentalType, actor string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions
		 SET proposed_rental_type = ?, proposed_by = ?,
		     desired_rental_type = COALESCE(desired_rental_type, IF(? = 'CUSTOMER', ?, desired_rental_type)),
		     confirmed_rental_type = NULL, confirmed_by = NULL,
		     updated_at = NOW()
		 WHERE id = ?`,
		rentalType, actor, actor, rentalType, sessionID)
	return err
}

// ConfirmTx locks in an agreed rental type and advances the session to
// AWAITING_ASSIGNMENT.  The WHERE clause guards against a stale
// transition from a session that already moved on.
func (r *LaneSessionRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, sessionID uint64, rentalType, actor string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions
		 SET confirmed_rental_type = ?, confirmed_by = ?, status = 'AWAITING_ASSIGNMENT', updated_at = NOW()
		 WHERE id = ? AND status IN ('ACTIVE','AWAITING_ASSIGNMENT')`,
		rentalType, actor, sessionID)
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

// SetResourceTx stores the allocated resource on the session and
// advances it to AWAITING_PAYMENT.  Re-assignment before signing is
// legal any number of times, so AWAITING_PAYMENT and
// AWAITING_SIGNATURE sessions may also be re-pointed.
func (r *LaneSessionRepo) SetResourceTx(ctx context.Context, tx *sql.Tx, sessionID uint64, kind string, resourceID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions
		 SET resource_kind = ?, resource_id = ?,
		     status = IF(status = 'AWAITING_ASSIGNMENT', 'AWAITING_PAYMENT', status),
		     updated_at = NOW()
		 WHERE id = ? AND status IN ('AWAITING_ASSIGNMENT','AWAITING_PAYMENT','AWAITING_SIGNATURE')`,
		kind, resourceID, sessionID)
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

// SetIntentTx pins the latest payment intent and mirrors its quote on
// the session for display.
func (r *LaneSessionRepo) SetIntentTx(ctx context.Context, tx *sql.Tx, sessionID, intentID uint64, quote json.RawMessage) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions SET payment_intent_id = ?, quote = ?, updated_at = NOW() WHERE id = ?`,
		intentID, []byte(quote), sessionID)
	return err
}

// SetStatusTx advances a session to the given status, guarding the
// edge against the lifecycle table.
func (r *LaneSessionRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, sessionID uint64, from, to string) error {
	if !model.SessionCanAdvance(from, to) {
		return ErrConflict
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`,
		to, sessionID, from)
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

// SetMembershipIntentTx toggles the 6-month membership purchase
// add-on on the session.
func (r *LaneSessionRepo) SetMembershipIntentTx(ctx context.Context, tx *sql.Tx, sessionID uint64, enabled bool) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions SET membership_intent = ?, updated_at = NOW() WHERE id = ?`,
		enabled, sessionID)
	return err
}

// SetPastDueBypass records that staff waived the past-due block for
// this session.
func (r *LaneSessionRepo) SetPastDueBypass(ctx context.Context, sessionID uint64, bypass bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE lane_sessions SET past_due_bypass = ?, updated_at = NOW() WHERE id = ?`,
		bypass, sessionID)
	return err
}

// SetKioskAck stamps the kiosk acknowledgement time.
func (r *LaneSessionRepo) SetKioskAck(ctx context.Context, sessionID uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE lane_sessions SET kiosk_ack_at = ?, updated_at = NOW() WHERE id = ?`,
		at.UTC(), sessionID)
	return err
}

// SignTx terminates the session after a successful agreement signing.
// The occupancy side effects happen elsewhere in the same transaction.
func (r *LaneSessionRepo) SignTx(ctx context.Context, tx *sql.Tx, sessionID uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions
		 SET agreement_signed_at = ?, status = 'COMPLETED', updated_at = NOW()
		 WHERE id = ? AND status = 'AWAITING_SIGNATURE'`,
		at.UTC(), sessionID)
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

// ResetTx clears every customer-scoped field and terminates the
// session so the lane can be reused.  Resources and checkin blocks
// are never touched: a customer who fully checked in keeps their
// occupancy; reset only clears the lane kiosk state.
func (r *LaneSessionRepo) ResetTx(ctx context.Context, tx *sql.Tx, sessionID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE lane_sessions
		 SET status = 'COMPLETED', customer_id = NULL,
		     desired_rental_type = NULL, proposed_rental_type = NULL, proposed_by = NULL,
		     confirmed_rental_type = NULL, confirmed_by = NULL,
		     resource_kind = NULL, resource_id = NULL,
		     payment_intent_id = NULL, quote = NULL,
		     membership_intent = FALSE, past_due_bypass = FALSE,
		     kiosk_ack_at = NULL, updated_at = NOW()
		 WHERE id = ? AND status <> 'COMPLETED'`,
		sessionID)
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
