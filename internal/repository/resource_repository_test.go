package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func resourceRow(id uint64, tier string, displayNo uint32) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "kind", "tier", "display_no", "status", "owner_customer_id", "created_at", "updated_at",
	}).AddRow(id, "ROOM", tier, displayNo, "CLEAN", nil, now, now)
}

// With two active waitlist entries for the tier, the walk-in must get
// the third lowest-numbered eligible resource: the query runs with
// OFFSET 2.
func TestAllocateSkipsWaitlistDemand(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewResourceRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("STANDARD").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("STANDARD", 2).
		WillReturnRows(resourceRow(103, "STANDARD", 3))

	tx, err := db.Begin()
	require.NoError(t, err)

	res, err := repo.AllocateTx(context.Background(), tx, "STANDARD")
	require.NoError(t, err)
	assert.Equal(t, uint64(103), res.ID)
	assert.Equal(t, uint32(3), res.DisplayNo)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateCapacityExhausted(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewResourceRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("SPECIAL").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("SPECIAL", 1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "kind", "tier", "display_no", "status", "owner_customer_id", "created_at", "updated_at",
		}))

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.AllocateTx(context.Background(), tx, "SPECIAL")
	assert.ErrorIs(t, err, ErrCapacityExhausted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// The offer path takes the first eligible resource instead of skipping
// ahead of the queue.
func TestAllocateForWaitlistTakesFirstFree(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewResourceRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("DOUBLE").
		WillReturnRows(resourceRow(201, "DOUBLE", 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	res, err := repo.AllocateForWaitlistTx(context.Background(), tx, "DOUBLE")
	require.NoError(t, err)
	assert.Equal(t, uint64(201), res.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Occupying a resource that was taken or dirtied since assignment
// matches zero rows and must surface as a conflict.
func TestOccupyConflictOnStaleResource(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewResourceRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE resources SET owner_customer_id`).
		WithArgs(uint64(7), uint64(101)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)

	err = repo.OccupyTx(context.Background(), tx, 101, 7)
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClearsOwner(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewResourceRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE resources SET owner_customer_id = NULL`).
		WithArgs("DIRTY", uint64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	assert.NoError(t, repo.ReleaseTx(context.Background(), tx, 101, "DIRTY"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
