package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// CustomerRepo provides data access to the customers table.
// Customers are identified by phone number at the lane; everything
// else about them (membership, past-due balance, bans, notes) is
// mutated by the check-in and checkout flows.
type CustomerRepo struct {
	db *sql.DB
}

// NewCustomerRepo returns a new CustomerRepo bound to the given database.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

const customerColumns = `id, full_name, phone, language, birth_date, membership_expires_at,
 past_due_cents, banned_until, notes, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*model.Customer, error) {
	var c model.Customer
	var birth, memberUntil, bannedUntil sql.NullTime
	if err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Language, &birth,
		&memberUntil, &c.PastDueCents, &bannedUntil, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if birth.Valid {
		t := birth.Time
		c.BirthDate = &t
	}
	if memberUntil.Valid {
		t := memberUntil.Time
		c.MembershipExpiresAt = &t
	}
	if bannedUntil.Valid {
		t := bannedUntil.Time
		c.BannedUntil = &t
	}
	return &c, nil
}

// GetByID returns one customer or ErrNotFound.
func (r *CustomerRepo) GetByID(ctx context.Context, id uint64) (*model.Customer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByIDTx returns one customer inside a transaction, locking the row.
func (r *CustomerRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Customer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? FOR UPDATE`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByPhone looks a customer up by normalized phone number, or
// returns ErrNotFound.
func (r *CustomerRepo) GetByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = ?`,
		normalizePhone(phone))
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByPhoneTx looks a customer up by normalized phone number inside a
// transaction, or returns ErrNotFound.
func (r *CustomerRepo) GetByPhoneTx(ctx context.Context, tx *sql.Tx, phone string) (*model.Customer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = ?`,
		normalizePhone(phone))
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// CreateTx registers a new customer and returns their ID.
func (r *CustomerRepo) CreateTx(ctx context.Context, tx *sql.Tx, fullName, phone, language string) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO customers (full_name, phone, language, notes) VALUES (?, ?, ?, '')`,
		strings.TrimSpace(fullName), normalizePhone(phone), language)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// SetLanguage updates the customer's preferred language.
func (r *CustomerRepo) SetLanguage(ctx context.Context, id uint64, language string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE customers SET language = ?, updated_at = NOW() WHERE id = ?`,
		language, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExtendMembershipTx applies a purchased 6-month membership.  The new
// period starts from the current expiry when the membership is still
// valid, otherwise from now.
func (r *CustomerRepo) ExtendMembershipTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE customers
		 SET membership_expires_at = DATE_ADD(GREATEST(COALESCE(membership_expires_at, ?), ?), INTERVAL 6 MONTH),
		     updated_at = NOW()
		 WHERE id = ?`,
		now.UTC(), now.UTC(), id)
	return err
}

// ApplyBanTx bans the customer until the given time.
func (r *CustomerRepo) ApplyBanTx(ctx context.Context, tx *sql.Tx, id uint64, until time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE customers SET banned_until = ?, updated_at = NOW() WHERE id = ?`,
		until.UTC(), id)
	return err
}

// AddPastDueTx adds a fee to the customer's running past-due balance
// and appends a system-generated note line documenting the charge.
// Both writes happen in the caller's transaction so a fee is never
// recorded without its note or vice versa.
func (r *CustomerRepo) AddPastDueTx(ctx context.Context, tx *sql.Tx, id uint64, feeCents int64, note string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE customers
		 SET past_due_cents = past_due_cents + ?,
		     notes = CONCAT(notes, ?),
		     updated_at = NOW()
		 WHERE id = ?`,
		feeCents, note+"\n", id)
	return err
}

// normalizePhone strips spaces and dashes so lookups are stable
// regardless of how the number was typed.
func normalizePhone(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	return p
}
