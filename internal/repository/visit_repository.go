package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/facility-checkin/internal/model"
)

// VisitRepo provides data access to the visits and checkin_blocks
// tables.  A visit groups the consecutive occupancy blocks of one
// continuous stay; renewals reuse the open visit.  Blocks are created
// only at agreement-signing time, inside the signing transaction.
type VisitRepo struct {
	db *sql.DB
}

// NewVisitRepo returns a new VisitRepo bound to the given database.
func NewVisitRepo(db *sql.DB) *VisitRepo { return &VisitRepo{db: db} }

// OpenVisitByCustomerTx returns the customer's open visit, locking the
// row, or ErrNotFound when the customer is not currently staying.
func (r *VisitRepo) OpenVisitByCustomerTx(ctx context.Context, tx *sql.Tx, customerID uint64) (*model.Visit, error) {
	var v model.Visit
	var ended sql.NullTime
	err := tx.QueryRowContext(ctx,
		`SELECT id, customer_id, started_at, ended_at, created_at
		 FROM visits WHERE customer_id = ? AND ended_at IS NULL
		 FOR UPDATE`,
		customerID).Scan(&v.ID, &v.CustomerID, &v.StartedAt, &ended, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		v.EndedAt = &t
	}
	return &v, nil
}

// CreateVisitTx opens a new visit for the customer and returns its ID.
func (r *VisitRepo) CreateVisitTx(ctx context.Context, tx *sql.Tx, customerID uint64, startedAt time.Time) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO visits (customer_id, started_at) VALUES (?, ?)`,
		customerID, startedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// EndVisitTx closes an open visit.  Ending an already-ended visit is a
// stale transition: ErrConflict.
func (r *VisitRepo) EndVisitTx(ctx context.Context, tx *sql.Tx, visitID uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE visits SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		at.UTC(), visitID)
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

// CreateBlockTx records an occupancy interval under a visit and
// returns the block ID.
func (r *VisitRepo) CreateBlockTx(ctx context.Context, tx *sql.Tx, visitID, resourceID uint64, startsAt, endsAt time.Time) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO checkin_blocks (visit_id, resource_id, starts_at, ends_at)
		 VALUES (?, ?, ?, ?)`,
		visitID, resourceID, startsAt.UTC(), endsAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// BlockDetail joins a checkin block with its visit, resource and
// customer.  It carries everything checkout needs to compute fees and
// release the right resource.
type BlockDetail struct {
	Block        model.CheckinBlock
	VisitID      uint64
	VisitEndedAt *time.Time
	CustomerID   uint64
	CustomerName string
	ResourceID   uint64
	ResourceKind string
	ScheduledEnd time.Time
}

// GetBlockDetail loads a block with its surrounding context, or
// ErrNotFound.
func (r *VisitRepo) GetBlockDetail(ctx context.Context, blockID uint64) (*BlockDetail, error) {
	return r.blockDetail(ctx, r.db.QueryRowContext, blockID)
}

// GetBlockDetailTx is GetBlockDetail inside a transaction.
func (r *VisitRepo) GetBlockDetailTx(ctx context.Context, tx *sql.Tx, blockID uint64) (*BlockDetail, error) {
	return r.blockDetail(ctx, tx.QueryRowContext, blockID)
}

func (r *VisitRepo) blockDetail(ctx context.Context, queryRow func(context.Context, string, ...any) *sql.Row, blockID uint64) (*BlockDetail, error) {
	const q = `SELECT b.id, b.visit_id, b.resource_id, b.starts_at, b.ends_at, b.created_at,
	                  v.customer_id, v.ended_at, c.full_name, res.kind
	           FROM checkin_blocks b
	           JOIN visits v ON v.id = b.visit_id
	           JOIN customers c ON c.id = v.customer_id
	           JOIN resources res ON res.id = b.resource_id
	           WHERE b.id = ?`
	var d BlockDetail
	var ended sql.NullTime
	err := queryRow(ctx, q, blockID).Scan(
		&d.Block.ID, &d.Block.VisitID, &d.Block.ResourceID,
		&d.Block.StartsAt, &d.Block.EndsAt, &d.Block.CreatedAt,
		&d.CustomerID, &ended, &d.CustomerName, &d.ResourceKind)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		d.VisitEndedAt = &t
	}
	d.VisitID = d.Block.VisitID
	d.ResourceID = d.Block.ResourceID
	d.ScheduledEnd = d.Block.EndsAt
	return &d, nil
}

// LatestBlockForCustomer returns the newest checkin block of the
// customer's open visit, for snapshot display.  ErrNotFound when the
// customer has no open occupancy.
func (r *VisitRepo) LatestBlockForCustomer(ctx context.Context, customerID uint64) (*model.CheckinBlock, error) {
	var b model.CheckinBlock
	err := r.db.QueryRowContext(ctx,
		`SELECT b.id, b.visit_id, b.resource_id, b.starts_at, b.ends_at, b.created_at
		 FROM checkin_blocks b
		 JOIN visits v ON v.id = b.visit_id
		 WHERE v.customer_id = ? AND v.ended_at IS NULL
		 ORDER BY b.ends_at DESC
		 LIMIT 1`,
		customerID).Scan(&b.ID, &b.VisitID, &b.ResourceID, &b.StartsAt, &b.EndsAt, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
