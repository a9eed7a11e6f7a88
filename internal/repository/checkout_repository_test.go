package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/facility-checkin/internal/model"
)

func checkoutRow(id uint64, status string, claimedBy any, claimedAt, claimExpires any) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "block_id", "key_tag", "checklist", "late_minutes", "fee_cents", "ban_applied",
		"status", "claimed_by", "claimed_at", "claim_expires_at", "items_confirmed", "fee_paid",
		"created_at", "updated_at",
	}).AddRow(id, 9, nil, []byte(`{}`), 0, int64(0), false,
		status, claimedBy, claimedAt, claimExpires, false, false, now, now)
}

// A live claim blocks every re-claim attempt, including by the holder.
func TestClaimHeldByAnother(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewCheckoutRepo(db)

	claimedAt := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)
	expires := claimedAt.Add(model.ClaimTTL)
	now := claimedAt.Add(119 * time.Second) // one second before expiry

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(uint64(5)).
		WillReturnRows(checkoutRow(5, "CLAIMED", uint64(3), claimedAt, expires))

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.ClaimTx(context.Background(), tx, 5, 7, now)
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Once the previous claim lapses, any staff member may take over; the
// new claim runs ClaimTTL from the takeover instant.
func TestClaimTakeoverAfterExpiry(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewCheckoutRepo(db)

	claimedAt := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)
	expires := claimedAt.Add(model.ClaimTTL)
	now := claimedAt.Add(121 * time.Second) // one second past expiry
	newExpires := now.Add(model.ClaimTTL)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(uint64(5)).
		WillReturnRows(checkoutRow(5, "CLAIMED", uint64(3), claimedAt, expires))
	mock.ExpectExec(`UPDATE checkout_requests`).
		WithArgs(uint64(7), now, newExpires, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	cr, err := repo.ClaimTx(context.Background(), tx, 5, 7, now)
	require.NoError(t, err)
	require.NotNil(t, cr.ClaimedBy)
	assert.Equal(t, uint64(7), *cr.ClaimedBy)
	require.NotNil(t, cr.ClaimExpiresAt)
	assert.Equal(t, newExpires, *cr.ClaimExpiresAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A fresh SUBMITTED request is claimable immediately.
func TestClaimSubmitted(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewCheckoutRepo(db)

	now := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(uint64(5)).
		WillReturnRows(checkoutRow(5, "SUBMITTED", nil, nil, nil))
	mock.ExpectExec(`UPDATE checkout_requests`).
		WithArgs(uint64(7), now, now.Add(model.ClaimTTL), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	cr, err := repo.ClaimTx(context.Background(), tx, 5, 7, now)
	require.NoError(t, err)
	assert.Equal(t, model.CheckoutClaimed, cr.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// An occupancy with an open request rejects a second submission.
func TestCreateRejectsDuplicateOpenRequest(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewCheckoutRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM checkout_requests`).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.CreateTx(context.Background(), tx, 9, nil, nil, 0, 0, false)
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Only the claimant may flip desk-side flags.
func TestSetFlagForbiddenForNonClaimant(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewCheckoutRepo(db)

	claimedAt := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)
	expires := claimedAt.Add(model.ClaimTTL)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(uint64(5)).
		WillReturnRows(checkoutRow(5, "CLAIMED", uint64(3), claimedAt, expires))

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.SetItemsConfirmedTx(context.Background(), tx, 5, 7, claimedAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NoError(t, mock.ExpectationsWereMet())
}
