package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Creating a new intent first cancels every open one for the session,
// so the at-most-one-DUE invariant holds inside one transaction.
func TestCreateCoalescedCancelsOpenIntents(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewPaymentIntentRepo(db)

	quote := json.RawMessage(`{"total_cents":3200}`)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payment_intents SET status = 'CANCELLED'`).
		WithArgs(uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO payment_intents`).
		WithArgs(uint64(42), int64(3200), "CARD", []byte(quote)).
		WillReturnResult(sqlmock.NewResult(12, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	id, err := repo.CreateCoalescedTx(context.Background(), tx, 42, 3200, "CARD", quote)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// PAID is terminal: marking anything but a DUE intent matches zero
// rows and is a stale transition.
func TestMarkPaidStaleTransition(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewPaymentIntentRepo(db)

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payment_intents SET status = 'PAID'`).
		WithArgs(now, uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)

	err = repo.MarkPaidTx(context.Background(), tx, 12, now)
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}
