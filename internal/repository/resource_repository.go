package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// ResourceRepo provides data access to the resources table: the fixed
// inventory of rooms and lockers.  Allocation runs here because it is
// a pure row-selection problem; the lane session layer only stores the
// outcome.  All multi-step operations take an explicit *sql.Tx so the
// caller controls the transaction boundary.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo returns a new ResourceRepo bound to the given database.
func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *ResourceRepo) DB() *sql.DB { return r.db }

const resourceColumns = `id, kind, tier, display_no, status, owner_customer_id, created_at, updated_at`

func scanResource(row interface{ Scan(...any) error }) (*model.Resource, error) {
	var res model.Resource
	var owner sql.NullInt64
	if err := row.Scan(&res.ID, &res.Kind, &res.Tier, &res.DisplayNo, &res.Status,
		&owner, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		id := uint64(owner.Int64)
		res.OwnerCustomerID = &id
	}
	return &res, nil
}

// GetByID returns one resource or ErrNotFound.
func (r *ResourceRepo) GetByID(ctx context.Context, id uint64) (*model.Resource, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return res, err
}

// GetByIDTx returns one resource inside a transaction, locking the row.
func (r *ResourceRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Resource, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ? FOR UPDATE`, id)
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return res, err
}

// List returns the whole inventory ordered by display number.  Used by
// the front desk board; read-only.
func (r *ResourceRepo) List(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources ORDER BY display_no ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Resource, 0)
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// AllocateTx picks the resource a walk-in customer of the given tier
// should receive, honouring the waitlist.  With N ACTIVE waitlist
// entries for the tier (whose stays are still open), the first N free
// resources are reserved ahead for them, so the walk-in gets the
// (N+1)th lowest-numbered CLEAN, unowned resource.  Resources pinned
// by OFFERED entries are excluded entirely.  The SELECT uses FOR
// UPDATE SKIP LOCKED so two concurrent allocations never race onto
// the same row: a row locked by a sibling transaction is simply
// invisible here.  When fewer than N+1 eligible resources exist,
// ErrCapacityExhausted is returned and the caller should route the
// customer to the waitlist.
//
// The returned resource is locked but NOT mutated; allocation is a
// reservation on the lane session only.  The real status flip happens
// at agreement signing via OccupyTx.
func (r *ResourceRepo) AllocateTx(ctx context.Context, tx *sql.Tx, tier string) (*model.Resource, error) {
	demand, err := r.activeDemandTx(ctx, tx, tier)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRowContext(ctx,
		`SELECT `+resourceColumns+`
		 FROM resources
		 WHERE tier = ?
		   AND status = 'CLEAN'
		   AND owner_customer_id IS NULL
		   AND id NOT IN (
		       SELECT reserved_resource_id FROM waitlist_entries
		       WHERE status = 'OFFERED' AND reserved_resource_id IS NOT NULL
		   )
		 ORDER BY display_no ASC
		 LIMIT 1 OFFSET ?
		 FOR UPDATE SKIP LOCKED`,
		tier, demand)
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrCapacityExhausted
	}
	return res, err
}

// AllocateForWaitlistTx picks the resource to offer to a waitlist
// entry: the lowest-numbered CLEAN, unowned resource of the tier that
// is not already pinned by another offer.  Unlike AllocateTx it does
// not skip ahead of the queue, because the resources held back from
// walk-ins are exactly the ones meant for the waitlist.
func (r *ResourceRepo) AllocateForWaitlistTx(ctx context.Context, tx *sql.Tx, tier string) (*model.Resource, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+resourceColumns+`
		 FROM resources
		 WHERE tier = ?
		   AND status = 'CLEAN'
		   AND owner_customer_id IS NULL
		   AND id NOT IN (
		       SELECT reserved_resource_id FROM waitlist_entries
		       WHERE status = 'OFFERED' AND reserved_resource_id IS NOT NULL
		   )
		 ORDER BY display_no ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		tier)
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrCapacityExhausted
	}
	return res, err
}

// activeDemandTx counts ACTIVE waitlist entries for a tier whose
// underlying visit has not ended.  Entries without a visit (customers
// waiting before check-in) always count.
func (r *ResourceRepo) activeDemandTx(ctx context.Context, tx *sql.Tx, tier string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM waitlist_entries w
		 LEFT JOIN visits v ON v.id = w.visit_id
		 WHERE w.desired_tier = ?
		   AND w.status = 'ACTIVE'
		   AND (w.visit_id IS NULL OR v.ended_at IS NULL)`,
		tier).Scan(&n)
	return n, err
}

// OccupyTx flips a CLEAN, unowned resource to occupied by setting its
// owner.  It is called exclusively at agreement signing.  If the
// resource was taken or dirtied in the meantime, ErrConflict is
// returned and the whole signing transaction rolls back.
func (r *ResourceRepo) OccupyTx(ctx context.Context, tx *sql.Tx, resourceID, customerID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE resources SET owner_customer_id = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'CLEAN' AND owner_customer_id IS NULL`,
		customerID, resourceID)
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

// ReleaseTx clears a resource's owner and sets its post-checkout
// status (DIRTY for rooms, CLEAN for lockers).  Called from checkout
// completion only.
func (r *ResourceRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, resourceID uint64, status string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE resources SET owner_customer_id = NULL, status = ?, updated_at = NOW()
		 WHERE id = ? AND owner_customer_id IS NOT NULL`,
		status, resourceID)
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

// SetStatus moves an unoccupied resource through the housekeeping
// cycle (DIRTY -> CLEANING -> CLEAN).  Occupied resources are never
// touched here.
func (r *ResourceRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE resources SET status = ?, updated_at = NOW()
		 WHERE id = ? AND owner_customer_id IS NULL`,
		status, id)
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
