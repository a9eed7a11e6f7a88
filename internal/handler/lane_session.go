package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/model"
	"github.com/iliyamo/facility-checkin/internal/pricing"
	"github.com/iliyamo/facility-checkin/internal/queue"
	"github.com/iliyamo/facility-checkin/internal/repository"
	queue_publisher "github.com/iliyamo/facility-checkin/internal/service"
	"github.com/iliyamo/facility-checkin/internal/snapshot"
)

// LaneHandler serves every lane session command.  Each command runs in
// one database transaction; after a successful commit the handler
// rebuilds the session snapshot and publishes it to the session.updated
// queue.  Nothing is published for failed commands, so subscribers only
// ever see committed state.
type LaneHandler struct {
	Sessions  *repository.LaneSessionRepo
	Customers *repository.CustomerRepo
	Resources *repository.ResourceRepo
	Intents   *repository.PaymentIntentRepo
	Visits    *repository.VisitRepo
	Waitlist  *repository.WaitlistRepo
	Snapshots *snapshot.Builder
}

// NewLaneHandler builds a LaneHandler from its repositories and the
// snapshot builder.
func NewLaneHandler(sessions *repository.LaneSessionRepo, customers *repository.CustomerRepo,
	resources *repository.ResourceRepo, intents *repository.PaymentIntentRepo,
	visits *repository.VisitRepo, waitlist *repository.WaitlistRepo, snapshots *snapshot.Builder) *LaneHandler {
	return &LaneHandler{
		Sessions:  sessions,
		Customers: customers,
		Resources: resources,
		Intents:   intents,
		Visits:    visits,
		Waitlist:  waitlist,
		Snapshots: snapshots,
	}
}

// emitUpdated rebuilds the snapshot for a session and publishes it.
// Publish failures are logged and swallowed: the command already
// committed, and the broker will catch up on the next mutation.
func (h *LaneHandler) emitUpdated(ctx context.Context, laneID, sessionID uint64) {
	snap, err := h.Snapshots.Build(ctx, sessionID)
	if err != nil {
		log.Printf("lane %d: snapshot build failed: %v", laneID, err)
		return
	}
	body, err := json.Marshal(snap)
	if err != nil {
		log.Printf("lane %d: snapshot marshal failed: %v", laneID, err)
		return
	}
	_ = queue_publisher.PublishSessionUpdated(ctx, queue.SessionUpdatedEvent{
		LaneID:    laneID,
		SessionID: sessionID,
		Snapshot:  body,
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Snapshot handles GET /v1/lanes/:lane_id/session.
// It returns the current snapshot of the lane's open session.  The
// push queue is the primary delivery channel; this endpoint exists for
// initial page loads and reconnects.
func (h *LaneHandler) Snapshot(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	ctx := c.Request().Context()
	sess, err := h.Sessions.GetOpenByLane(ctx, laneID)
	if err != nil {
		return fail(c, err)
	}
	snap, err := h.Snapshots.Build(ctx, sess.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// Identify handles POST /v1/lanes/:lane_id/identify.
// Staff identifies the customer by phone; an unknown phone registers a
// new customer.  A new ACTIVE session is opened on the lane; a second
// open session on the same lane is rejected with 409.  Banned
// customers cannot start a session.
func (h *LaneHandler) Identify(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		Phone    string `json:"phone"`
		FullName string `json:"full_name"`
		Language string `json:"language"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Phone) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is required"})
	}
	if req.Language == "" {
		req.Language = "en"
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cust, err := h.Customers.GetByPhoneTx(ctx, tx, req.Phone)
	if errors.Is(err, repository.ErrNotFound) {
		if strings.TrimSpace(req.FullName) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name is required for a new customer"})
		}
		id, cerr := h.Customers.CreateTx(ctx, tx, req.FullName, req.Phone, req.Language)
		if cerr != nil {
			return fail(c, cerr)
		}
		cust, err = h.Customers.GetByIDTx(ctx, tx, id)
	}
	if err != nil {
		return fail(c, err)
	}
	if cust.BannedAt(now) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "customer_banned", "banned_until": cust.BannedUntil})
	}

	sessionID, err := h.Sessions.CreateTx(ctx, tx, laneID, cust.ID)
	if err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sessionID)
	return c.JSON(http.StatusCreated, echo.Map{
		"session_id":  sessionID,
		"customer_id": cust.ID,
	})
}

// SetLanguage handles POST /v1/lanes/:lane_id/language.
// It updates the identified customer's preferred language.
func (h *LaneHandler) SetLanguage(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		Language string `json:"language"`
	}
	if err := c.Bind(&req); err != nil || req.Language == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "language is required"})
	}
	ctx := c.Request().Context()
	sess, err := h.Sessions.GetOpenByLane(ctx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if sess.CustomerID == nil {
		return c.JSON(http.StatusPreconditionFailed, echo.Map{"error": "no customer identified"})
	}
	if err := h.Customers.SetLanguage(ctx, *sess.CustomerID, req.Language); err != nil {
		return fail(c, err)
	}
	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "language updated"})
}

// ProposeRental handles POST /v1/lanes/:lane_id/rental/propose.
// Either side may propose a rental type; a new proposal reopens
// negotiation by clearing any previous confirmation.  The first
// customer proposal is additionally remembered as the desired type.
func (h *LaneHandler) ProposeRental(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		RentalType string `json:"rental_type"`
		Actor      string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil || !model.KnownTier(req.RentalType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown rental type"})
	}
	if req.Actor != model.ActorCustomer && req.Actor != model.ActorStaff {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "actor must be CUSTOMER or STAFF"})
	}
	ctx := c.Request().Context()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	// Re-proposal is allowed until payment starts.
	if sess.Status != model.SessionActive && sess.Status != model.SessionAwaitingAssignment {
		return fail(c, repository.ErrConflict)
	}
	if err := h.Sessions.ProposeTx(ctx, tx, sess.ID, req.RentalType, req.Actor); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "rental proposed"})
}

// ConfirmRental handles POST /v1/lanes/:lane_id/rental/confirm.
// The confirming side must differ from the proposing side and must
// confirm the exact proposed type; anything else is a stale
// confirmation.  On success the session advances to
// AWAITING_ASSIGNMENT.
func (h *LaneHandler) ConfirmRental(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		RentalType string `json:"rental_type"`
		Actor      string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil || !model.KnownTier(req.RentalType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown rental type"})
	}
	if req.Actor != model.ActorCustomer && req.Actor != model.ActorStaff {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "actor must be CUSTOMER or STAFF"})
	}
	ctx := c.Request().Context()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if !sess.ConfirmsProposal(req.RentalType, req.Actor) {
		return fail(c, repository.ErrPreconditionFailed)
	}
	if err := h.Sessions.ConfirmTx(ctx, tx, sess.ID, req.RentalType, req.Actor); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "rental confirmed"})
}

// AssignResource handles POST /v1/lanes/:lane_id/assign.
// It allocates the lowest-numbered eligible resource of the confirmed
// tier, skipping resources reserved ahead for the waitlist.  The
// allocation is a reservation on the session only; the resource row is
// not occupied until the agreement is signed.  When capacity is
// exhausted the customer may be routed to the waitlist by setting
// join_waitlist.
func (h *LaneHandler) AssignResource(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		JoinWaitlist bool    `json:"join_waitlist"`
		BackupTier   *string `json:"backup_tier"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.BackupTier != nil && !model.KnownTier(*req.BackupTier) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown backup tier"})
	}
	ctx := c.Request().Context()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if !sess.SelectionConfirmed() {
		return fail(c, repository.ErrPreconditionFailed)
	}
	tier := *sess.ConfirmedRentalType

	res, err := h.Resources.AllocateTx(ctx, tx, tier)
	if errors.Is(err, repository.ErrCapacityExhausted) && req.JoinWaitlist && sess.CustomerID != nil {
		// No resource for the walk-in right now; park them on the
		// waitlist inside the same transaction and report 202.
		entryID, werr := h.Waitlist.CreateTx(ctx, tx, *sess.CustomerID, nil, tier, req.BackupTier)
		if werr != nil {
			return fail(c, werr)
		}
		if cerr := tx.Commit(); cerr != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
		}
		committed = true
		h.emitUpdated(ctx, laneID, sess.ID)
		return c.JSON(http.StatusAccepted, echo.Map{
			"waitlist_entry_id": entryID,
			"message":           "capacity exhausted, customer added to waitlist",
		})
	}
	if err != nil {
		return fail(c, err)
	}

	if err := h.Sessions.SetResourceTx(ctx, tx, sess.ID, res.Kind, res.ID); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"resource_id":   res.ID,
		"resource_kind": res.Kind,
		"display_no":    res.DisplayNo,
	})
}

// CreatePaymentIntent handles POST /v1/lanes/:lane_id/payment-intent.
// It quotes the confirmed rental for the identified customer and
// creates a DUE intent, cancelling any older open intent so at most
// one DUE intent exists per session.  Re-quoting is allowed up to and
// including AWAITING_PAYMENT; after the intent is paid the quote is
// settled and a new intent is a stale command.
func (h *LaneHandler) CreatePaymentIntent(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := c.Bind(&req); err != nil || req.Method == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "method is required"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if sess.CustomerID == nil || !sess.SelectionConfirmed() {
		return fail(c, repository.ErrPreconditionFailed)
	}
	// Once payment is settled the pinned intent must stay PAID; a new
	// DUE intent here would silently re-lock signing.
	if sess.Status != model.SessionAwaitingAssignment && sess.Status != model.SessionAwaitingPayment {
		return fail(c, repository.ErrConflict)
	}
	cust, err := h.Customers.GetByIDTx(ctx, tx, *sess.CustomerID)
	if err != nil {
		return fail(c, err)
	}

	quote := pricing.ForCheckin(*sess.ConfirmedRentalType, cust.AgeAt(now), cust.MemberAt(now), sess.MembershipIntent)
	intentID, err := h.Intents.CreateCoalescedTx(ctx, tx, sess.ID, quote.TotalCents, req.Method, quote.JSON())
	if err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.SetIntentTx(ctx, tx, sess.ID, intentID, quote.JSON()); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"intent_id":    intentID,
		"amount_cents": quote.TotalCents,
		"quote":        quote,
	})
}

// MarkPaymentPaid handles POST /v1/lanes/:lane_id/payment-intent/paid.
// Staff confirms the customer settled the session's current intent.
// PAID is irreversible; an already-paid or cancelled intent yields 409.
// On success the session advances to AWAITING_SIGNATURE.
func (h *LaneHandler) MarkPaymentPaid(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if sess.PaymentIntentID == nil || sess.Status != model.SessionAwaitingPayment {
		return fail(c, repository.ErrPreconditionFailed)
	}
	if err := h.Intents.MarkPaidTx(ctx, tx, *sess.PaymentIntentID, now); err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.SetStatusTx(ctx, tx, sess.ID, model.SessionAwaitingPayment, model.SessionAwaitingSignature); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "payment recorded"})
}

// SetMembershipIntent handles POST /v1/lanes/:lane_id/membership.
// It toggles the 6-month membership add-on.  The quote is not
// recomputed here; the next payment intent picks the flag up.
func (h *LaneHandler) SetMembershipIntent(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.SetMembershipIntentTx(ctx, tx, sess.ID, req.Enabled); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "membership intent updated"})
}

// CompleteMembership handles POST /v1/lanes/:lane_id/membership/complete.
// It applies the purchased membership to the customer: 6 months from
// the current expiry when still valid, otherwise from now.  The intent
// covering the purchase must be PAID.  Runs serializable because it
// reads and extends the same expiry other lanes could touch.
func (h *LaneHandler) CompleteMembership(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Sessions.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if sess.CustomerID == nil || !sess.MembershipIntent || sess.PaymentIntentID == nil {
		return fail(c, repository.ErrPreconditionFailed)
	}
	intent, err := h.Intents.GetByIDTx(ctx, tx, *sess.PaymentIntentID)
	if err != nil {
		return fail(c, err)
	}
	if intent.Status != model.IntentPaid {
		return fail(c, repository.ErrPreconditionFailed)
	}
	if err := h.Customers.ExtendMembershipTx(ctx, tx, *sess.CustomerID, now); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "membership applied"})
}

// SetPastDueBypass handles POST /v1/lanes/:lane_id/past-due-bypass.
// Staff waives the past-due block for this session only; the balance
// itself is untouched.
func (h *LaneHandler) SetPastDueBypass(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	var req struct {
		Bypass bool `json:"bypass"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	sess, err := h.Sessions.GetOpenByLane(ctx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.SetPastDueBypass(ctx, sess.ID, req.Bypass); err != nil {
		return fail(c, err)
	}
	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "past-due bypass updated"})
}

// KioskAcknowledge handles POST /v1/lanes/:lane_id/kiosk-ack.
// The lane kiosk confirms it displayed the latest state to the
// customer.  Purely informational.
func (h *LaneHandler) KioskAcknowledge(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	ctx := c.Request().Context()
	sess, err := h.Sessions.GetOpenByLane(ctx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.SetKioskAck(ctx, sess.ID, time.Now().UTC()); err != nil {
		return fail(c, err)
	}
	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "acknowledged"})
}

// SignAgreement handles POST /v1/lanes/:lane_id/sign.
// Signing is the single point where reserved state becomes occupancy:
// the resource is occupied, a checkin block is written under the
// customer's visit (reusing an open visit for renewals), and the
// session terminates.  The transaction runs serializable; if the
// reserved resource was taken or dirtied since assignment, everything
// rolls back with 409 and staff must re-assign.
func (h *LaneHandler) SignAgreement(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Sessions.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if sess.Status != model.SessionAwaitingSignature {
		return fail(c, repository.ErrConflict)
	}
	if sess.CustomerID == nil || !sess.ResourceReserved() || sess.PaymentIntentID == nil {
		return fail(c, repository.ErrPreconditionFailed)
	}
	intent, err := h.Intents.GetByIDTx(ctx, tx, *sess.PaymentIntentID)
	if err != nil {
		return fail(c, err)
	}
	if intent.Status != model.IntentPaid {
		return fail(c, repository.ErrPreconditionFailed)
	}
	cust, err := h.Customers.GetByIDTx(ctx, tx, *sess.CustomerID)
	if err != nil {
		return fail(c, err)
	}
	if cust.PastDueCents > 0 && !sess.PastDueBypass {
		return fail(c, repository.ErrPreconditionFailed)
	}

	res, err := h.Resources.GetByIDTx(ctx, tx, *sess.ResourceID)
	if err != nil {
		return fail(c, err)
	}
	if !res.Assignable() {
		return fail(c, repository.ErrConflict)
	}

	visit, err := h.Visits.OpenVisitByCustomerTx(ctx, tx, cust.ID)
	var visitID uint64
	switch {
	case err == nil:
		visitID = visit.ID
	case errors.Is(err, repository.ErrNotFound):
		visitID, err = h.Visits.CreateVisitTx(ctx, tx, cust.ID, now)
		if err != nil {
			return fail(c, err)
		}
	default:
		return fail(c, err)
	}

	rentalType := *sess.ConfirmedRentalType
	blockID, err := h.Visits.CreateBlockTx(ctx, tx, visitID, res.ID, now, now.Add(pricing.StayDuration(rentalType)))
	if err != nil {
		return fail(c, err)
	}
	if err := h.Resources.OccupyTx(ctx, tx, res.ID, cust.ID); err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.SignTx(ctx, tx, sess.ID, now); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"visit_id":    visitID,
		"block_id":    blockID,
		"resource_id": res.ID,
	})
}

// ResetLane handles POST /v1/lanes/:lane_id/reset.
// Staff aborts the interaction: every customer-scoped field is cleared
// and the session terminates so the lane is free again.  Occupancy
// already established by a signed agreement is never rolled back by a
// reset.
func (h *LaneHandler) ResetLane(c echo.Context) error {
	laneID, ok := pathID(c, "lane_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane id"})
	}
	ctx := c.Request().Context()

	tx, err := h.Sessions.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sess, err := h.Sessions.GetOpenByLaneTx(ctx, tx, laneID)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Sessions.ResetTx(ctx, tx, sess.ID); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	h.emitUpdated(ctx, laneID, sess.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "lane reset"})
}
