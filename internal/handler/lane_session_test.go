package handler

import (
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
	"github.com/iliyamo/facility-checkin/internal/snapshot"
)

func newLaneHandler(t *testing.T) (*LaneHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sessions := repository.NewLaneSessionRepo(db)
	customers := repository.NewCustomerRepo(db)
	intents := repository.NewPaymentIntentRepo(db)
	visits := repository.NewVisitRepo(db)
	h := NewLaneHandler(sessions, customers,
		repository.NewResourceRepo(db), intents, visits,
		repository.NewWaitlistRepo(db),
		snapshot.NewBuilder(sessions, customers, intents, visits))
	return h, mock, func() { _ = db.Close() }
}

func laneRequest(path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/v1/lanes/1/"+path, nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/v1/lanes/1/"+path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/lanes/:lane_id/" + path)
	c.SetParamNames("lane_id")
	c.SetParamValues("1")
	return c, rec
}

// sessionRows builds the lane_sessions result for session 3 on lane 1:
// STANDARD confirmed, room 101 reserved, intent 44 pinned.
func sessionRows(now time.Time, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "lane_id", "status", "customer_id", "desired_rental_type",
		"proposed_rental_type", "proposed_by", "confirmed_rental_type", "confirmed_by",
		"resource_kind", "resource_id", "payment_intent_id", "quote", "membership_intent",
		"past_due_bypass", "kiosk_ack_at", "agreement_signed_at", "created_at", "updated_at",
	}).AddRow(3, 1, status, uint64(11), "STANDARD",
		"STANDARD", "CUSTOMER", "STANDARD", "STAFF",
		"ROOM", uint64(101), uint64(44), []byte(`{}`), false,
		false, nil, nil, now, now)
}

// Signing turns the reservation into occupancy, so it must not run
// until the pinned intent is PAID.  A DUE intent stops the command
// before any occupancy write and rolls the transaction back.
func TestSignAgreementRequiresPaidIntent(t *testing.T) {
	h, mock, done := newLaneHandler(t)
	defer done()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM lane_sessions`).
		WithArgs(uint64(1)).
		WillReturnRows(sessionRows(now, "AWAITING_SIGNATURE"))
	mock.ExpectQuery(`FROM payment_intents`).
		WithArgs(uint64(44)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "amount_cents", "status", "method", "quote",
			"paid_at", "created_at", "updated_at",
		}).AddRow(44, 3, int64(9900), "DUE", "CARD", []byte(`{}`), nil, now, now))
	mock.ExpectRollback()

	c, rec := laneRequest("sign", "")
	require.NoError(t, h.SignAgreement(c))

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Once the session reached AWAITING_SIGNATURE its intent is settled;
// re-quoting would repoint the session at a fresh DUE intent and lock
// signing again, so the command is stale.
func TestCreatePaymentIntentRejectedAfterPayment(t *testing.T) {
	h, mock, done := newLaneHandler(t)
	defer done()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM lane_sessions`).
		WithArgs(uint64(1)).
		WillReturnRows(sessionRows(now, "AWAITING_SIGNATURE"))
	mock.ExpectRollback()

	c, rec := laneRequest("payment-intent", `{"method":"CARD"}`)
	require.NoError(t, h.CreatePaymentIntent(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
