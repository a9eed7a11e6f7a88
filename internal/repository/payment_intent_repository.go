package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// PaymentIntentRepo provides data access to the payment_intents
// table.  The invariant that at most one DUE intent exists per session
// is enforced by CreateCoalescedTx: creating a new intent cancels
// every older open one in the same statement batch.
type PaymentIntentRepo struct {
	db *sql.DB
}

// NewPaymentIntentRepo returns a new PaymentIntentRepo bound to the given database.
func NewPaymentIntentRepo(db *sql.DB) *PaymentIntentRepo { return &PaymentIntentRepo{db: db} }

const intentColumns = `id, session_id, amount_cents, status, method, quote, paid_at, created_at, updated_at`

func scanIntent(row interface{ Scan(...any) error }) (*model.PaymentIntent, error) {
	var in model.PaymentIntent
	var quote []byte
	var paidAt sql.NullTime
	if err := row.Scan(&in.ID, &in.SessionID, &in.AmountCents, &in.Status,
		&in.Method, &quote, &paidAt, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return nil, err
	}
	if len(quote) > 0 {
		in.Quote = json.RawMessage(quote)
	}
	if paidAt.Valid {
		t := paidAt.Time
		in.PaidAt = &t
	}
	return &in, nil
}

// GetByID returns one intent or ErrNotFound.
func (r *PaymentIntentRepo) GetByID(ctx context.Context, id uint64) (*model.PaymentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = ?`, id)
	in, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return in, err
}

// GetByIDTx returns one intent inside a transaction, locking the row.
func (r *PaymentIntentRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.PaymentIntent, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = ? FOR UPDATE`, id)
	in, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return in, err
}

// CreateCoalescedTx inserts a new DUE intent for a session after
// cancelling any older DUE intents.  Duplicates are coalesced by
// keeping the newest: the cancel and the insert run in the caller's
// transaction, so the at-most-one-DUE invariant is never observably
// violated.  Returns the new intent's ID.
func (r *PaymentIntentRepo) CreateCoalescedTx(ctx context.Context, tx *sql.Tx, sessionID uint64, amountCents int64, method string, quote json.RawMessage) (uint64, error) {
	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_intents SET status = 'CANCELLED', updated_at = NOW()
		 WHERE session_id = ? AND status = 'DUE'`,
		sessionID); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payment_intents (session_id, amount_cents, status, method, quote)
		 VALUES (?, ?, 'DUE', ?, ?)`,
		sessionID, amountCents, method, []byte(quote))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// MarkPaidTx moves a DUE intent to PAID.  PAID is terminal and
// irreversible; marking anything other than a DUE intent is a stale
// transition and yields ErrConflict.
func (r *PaymentIntentRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_intents SET status = 'PAID', paid_at = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'DUE'`,
		at.UTC(), id)
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
