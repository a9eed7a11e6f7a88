package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/facility-checkin/internal/repository"
)

func newCheckoutHandler(t *testing.T) (*CheckoutHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	h := NewCheckoutHandler(
		repository.NewCheckoutRepo(db),
		repository.NewVisitRepo(db),
		repository.NewResourceRepo(db),
		repository.NewCustomerRepo(db),
		repository.NewWaitlistRepo(db),
		repository.NewAuditRepo(db),
	)
	return h, mock, func() { _ = db.Close() }
}

func completeRequest(staffID uint64) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkouts/5/complete", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/checkouts/:id/complete")
	c.SetParamNames("id")
	c.SetParamValues("5")
	c.Set("user_id", staffID)
	return c, rec
}

func submitRequest(body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkouts", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// blockRows builds the block detail join result for block 9: visit 2,
// resource 101 (a room), customer 11.  endedAt nil means the stay is
// still open.
func blockRows(now time.Time, endedAt *time.Time) *sqlmock.Rows {
	var ended any
	if endedAt != nil {
		ended = *endedAt
	}
	return sqlmock.NewRows([]string{
		"id", "visit_id", "resource_id", "starts_at", "ends_at", "created_at",
		"customer_id", "ended_at", "full_name", "kind",
	}).AddRow(9, 2, 101, now.Add(-13*time.Hour), now.Add(-time.Hour), now.Add(-13*time.Hour),
		uint64(11), ended, "Dana Smit", "ROOM")
}

// A stay that already ended has no open occupancy left; submitting a
// checkout against one of its blocks must be rejected before any
// request or audit row is written.
func TestSubmitRejectsEndedVisit(t *testing.T) {
	h, mock, done := newCheckoutHandler(t)
	defer done()

	now := time.Now().UTC()
	endedAt := now.Add(-90 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM checkin_blocks`).
		WithArgs(uint64(9)).
		WillReturnRows(blockRows(now, &endedAt))
	mock.ExpectRollback()

	c, rec := submitRequest(`{"block_id":9}`)
	require.NoError(t, h.Submit(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Completion is all-or-nothing: a failure after the fee increment must
// roll the whole transaction back, leaving the resource still owned
// and the request still CLAIMED.
func TestCompleteRollsBackOnLateFailure(t *testing.T) {
	h, mock, done := newCheckoutHandler(t)
	defer done()

	staffID := uint64(7)
	now := time.Now().UTC()
	claimedAt := now.Add(-30 * time.Second)
	expires := claimedAt.Add(2 * time.Minute)

	mock.ExpectBegin()
	// claimed request owned by the caller: items confirmed, fee frozen and settled
	mock.ExpectQuery(`FROM checkout_requests`).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "block_id", "key_tag", "checklist", "late_minutes", "fee_cents", "ban_applied",
			"status", "claimed_by", "claimed_at", "claim_expires_at", "items_confirmed", "fee_paid",
			"created_at", "updated_at",
		}).AddRow(5, 9, nil, []byte(`{}`), 45, int64(2000), false,
			"CLAIMED", staffID, claimedAt, expires, true, true, now, now))
	// block joined with visit, customer and resource; the stay is open
	mock.ExpectQuery(`FROM checkin_blocks`).
		WithArgs(uint64(9)).
		WillReturnRows(blockRows(now, nil))
	// one waitlist entry cancelled and audited
	mock.ExpectQuery(`SELECT id, status FROM waitlist_entries`).
		WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(31, "ACTIVE"))
	mock.ExpectExec(`UPDATE waitlist_entries`).
		WithArgs(uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// resource released, visit ended, fee recorded
	mock.ExpectExec(`UPDATE resources`).
		WithArgs("DIRTY", uint64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE visits`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE customers`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// the final status flip fails; everything above must roll back
	mock.ExpectExec(`UPDATE checkout_requests`).
		WillReturnError(errors.New("storage unavailable"))
	mock.ExpectRollback()

	c, rec := completeRequest(staffID)
	require.NoError(t, h.Complete(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Completing someone else's claim is forbidden and touches nothing.
func TestCompleteForbiddenForNonClaimant(t *testing.T) {
	h, mock, done := newCheckoutHandler(t)
	defer done()

	now := time.Now().UTC()
	claimedAt := now.Add(-30 * time.Second)
	expires := claimedAt.Add(2 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM checkout_requests`).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "block_id", "key_tag", "checklist", "late_minutes", "fee_cents", "ban_applied",
			"status", "claimed_by", "claimed_at", "claim_expires_at", "items_confirmed", "fee_paid",
			"created_at", "updated_at",
		}).AddRow(5, 9, nil, []byte(`{}`), 0, int64(0), false,
			"CLAIMED", uint64(3), claimedAt, expires, true, false, now, now))
	mock.ExpectRollback()

	c, rec := completeRequest(7)
	require.NoError(t, h.Complete(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
