package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/model"
	"github.com/iliyamo/facility-checkin/internal/pricing"
	"github.com/iliyamo/facility-checkin/internal/queue"
	"github.com/iliyamo/facility-checkin/internal/repository"
	queue_publisher "github.com/iliyamo/facility-checkin/internal/service"
)

// CheckoutHandler serves the checkout request lifecycle: submission
// from the kiosk, exclusive staff claim, desk-side flags and final
// completion.  Late minutes and fee are computed once at submission
// and frozen on the request; completion releases the resource, ends
// the visit when it was the last occupancy, and applies fee and ban to
// the customer in one serializable transaction.
type CheckoutHandler struct {
	Checkouts *repository.CheckoutRepo
	Visits    *repository.VisitRepo
	Resources *repository.ResourceRepo
	Customers *repository.CustomerRepo
	Waitlist  *repository.WaitlistRepo
	Audits    *repository.AuditRepo
}

// NewCheckoutHandler builds a CheckoutHandler from its repositories.
func NewCheckoutHandler(checkouts *repository.CheckoutRepo, visits *repository.VisitRepo,
	resources *repository.ResourceRepo, customers *repository.CustomerRepo,
	waitlist *repository.WaitlistRepo, audits *repository.AuditRepo) *CheckoutHandler {
	return &CheckoutHandler{
		Checkouts: checkouts,
		Visits:    visits,
		Resources: resources,
		Customers: customers,
		Waitlist:  waitlist,
		Audits:    audits,
	}
}

// emitEvent publishes a checkout lifecycle event after commit.
// Failures are swallowed; the desk board refreshes on the next event.
func (h *CheckoutHandler) emitEvent(ctx context.Context, kind string, cr *model.CheckoutRequest, d *repository.BlockDetail) {
	ev := queue.CheckoutEvent{
		Kind:        kind,
		RequestID:   cr.ID,
		BlockID:     cr.BlockID,
		LateMinutes: cr.LateMinutes,
		FeeCents:    cr.FeeCents,
		BanApplied:  cr.BanApplied,
		Status:      cr.Status,
		EmittedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if d != nil {
		ev.CustomerID = d.CustomerID
		ev.CustomerName = d.CustomerName
		ev.ResourceID = d.ResourceID
		ev.ResourceKind = d.ResourceKind
	}
	_ = queue_publisher.PublishCheckoutEvent(ctx, ev)
}

type checkoutResp struct {
	ID             uint64          `json:"id"`
	BlockID        uint64          `json:"block_id"`
	KeyTag         *string         `json:"key_tag,omitempty"`
	Checklist      json.RawMessage `json:"checklist,omitempty"`
	LateMinutes    int             `json:"late_minutes"`
	FeeCents       int64           `json:"fee_cents"`
	BanApplied     bool            `json:"ban_applied"`
	Status         string          `json:"status"`
	ClaimedBy      *uint64         `json:"claimed_by,omitempty"`
	ClaimExpiresAt *time.Time      `json:"claim_expires_at,omitempty"`
	ItemsConfirmed bool            `json:"items_confirmed"`
	FeePaid        bool            `json:"fee_paid"`
}

// Get handles GET /v1/checkouts/:id.
func (h *CheckoutHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid checkout id"})
	}
	cr, err := h.Checkouts.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, checkoutResp{
		ID:             cr.ID,
		BlockID:        cr.BlockID,
		KeyTag:         cr.KeyTag,
		Checklist:      cr.Checklist,
		LateMinutes:    cr.LateMinutes,
		FeeCents:       cr.FeeCents,
		BanApplied:     cr.BanApplied,
		Status:         cr.Status,
		ClaimedBy:      cr.ClaimedBy,
		ClaimExpiresAt: cr.ClaimExpiresAt,
		ItemsConfirmed: cr.ItemsConfirmed,
		FeePaid:        cr.FeePaid,
	})
}

// Submit handles POST /v1/checkouts.
// A customer (via kiosk) or staff submits a checkout for an occupancy
// block.  Late minutes against the scheduled end and the resulting fee
// are computed here and frozen; checkouts at least 30 minutes late are
// written to the audit trail regardless of the fee.  At most one open
// request per occupancy.
func (h *CheckoutHandler) Submit(c echo.Context) error {
	var req struct {
		BlockID   uint64          `json:"block_id"`
		KeyTag    *string         `json:"key_tag"`
		Checklist json.RawMessage `json:"checklist"`
	}
	if err := c.Bind(&req); err != nil || req.BlockID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "block_id is required"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Checkouts.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	detail, err := h.Visits.GetBlockDetailTx(ctx, tx, req.BlockID)
	if err != nil {
		return fail(c, err)
	}
	// A block whose stay already ended has nothing left to check out;
	// accepting it would freeze a fee against a finished visit.
	if detail.VisitEndedAt != nil {
		return fail(c, repository.ErrConflict)
	}

	lateMin := pricing.LateMinutes(now, detail.ScheduledEnd)
	feeCents, banApplied := pricing.LateFee(lateMin)

	id, err := h.Checkouts.CreateTx(ctx, tx, req.BlockID, req.KeyTag, req.Checklist, lateMin, feeCents, banApplied)
	if err != nil {
		return fail(c, err)
	}
	if lateMin >= pricing.LateEventThresholdMin {
		err = h.Audits.InsertTx(ctx, tx, repository.AuditLateCheckout, id, echo.Map{
			"block_id":     req.BlockID,
			"customer_id":  detail.CustomerID,
			"late_minutes": lateMin,
			"fee_cents":    feeCents,
			"ban_applied":  banApplied,
		})
		if err != nil {
			return fail(c, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	cr, err := h.Checkouts.GetByID(ctx, id)
	if err == nil {
		h.emitEvent(ctx, queue.CheckoutRequested, cr, detail)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"checkout_id":  id,
		"late_minutes": lateMin,
		"fee_cents":    feeCents,
		"ban_applied":  banApplied,
	})
}

// Claim handles POST /v1/checkouts/:id/claim.
// The calling staff member takes exclusive ownership of the request
// for two minutes.  A live claim held by anyone yields 409; expiry is
// evaluated lazily right here, so a lapsed claim is simply taken over.
func (h *CheckoutHandler) Claim(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid checkout id"})
	}
	staffID, err := getStaffID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Checkouts.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cr, err := h.Checkouts.ClaimTx(ctx, tx, id, staffID, now)
	if err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	detail, _ := h.Visits.GetBlockDetail(ctx, cr.BlockID)
	h.emitEvent(ctx, queue.CheckoutClaimed, cr, detail)
	return c.JSON(http.StatusOK, echo.Map{
		"checkout_id":      cr.ID,
		"claim_expires_at": cr.ClaimExpiresAt,
	})
}

// ConfirmItems handles POST /v1/checkouts/:id/confirm-items.
// Only the current claimant may confirm the returned items.
func (h *CheckoutHandler) ConfirmItems(c echo.Context) error {
	return h.setFlag(c, (*repository.CheckoutRepo).SetItemsConfirmedTx)
}

// MarkFeePaid handles POST /v1/checkouts/:id/mark-fee-paid.
// Only the current claimant may settle the late fee.
func (h *CheckoutHandler) MarkFeePaid(c echo.Context) error {
	return h.setFlag(c, (*repository.CheckoutRepo).SetFeePaidTx)
}

func (h *CheckoutHandler) setFlag(c echo.Context, op func(*repository.CheckoutRepo, context.Context, *sql.Tx, uint64, uint64, time.Time) (*model.CheckoutRequest, error)) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid checkout id"})
	}
	staffID, err := getStaffID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Checkouts.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cr, err := op(h.Checkouts, ctx, tx, id, staffID, now)
	if err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	detail, _ := h.Visits.GetBlockDetail(ctx, cr.BlockID)
	h.emitEvent(ctx, queue.CheckoutUpdated, cr, detail)
	return c.JSON(http.StatusOK, echo.Map{
		"items_confirmed": cr.ItemsConfirmed,
		"fee_paid":        cr.FeePaid,
	})
}

// Complete handles POST /v1/checkouts/:id/complete.
// The claimant finishes the checkout.  Everything happens in one
// serializable transaction: the customer's waitlist entries are
// cancelled (and audited), the resource is released (DIRTY for rooms,
// straight back to CLEAN for lockers), the visit ends, and any frozen
// ban or unpaid fee is applied to the customer.  If any step fails the
// whole checkout rolls back and the resource stays occupied.
func (h *CheckoutHandler) Complete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid checkout id"})
	}
	staffID, err := getStaffID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	now := time.Now().UTC()

	tx, err := h.Checkouts.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cr, err := h.Checkouts.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return fail(c, err)
	}
	if cr.Status != model.CheckoutClaimed {
		return fail(c, repository.ErrConflict)
	}
	if !cr.ClaimedByStaff(staffID) {
		return fail(c, repository.ErrForbidden)
	}
	if !cr.Completable(staffID, now) {
		return fail(c, repository.ErrPreconditionFailed)
	}

	detail, err := h.Visits.GetBlockDetailTx(ctx, tx, cr.BlockID)
	if err != nil {
		return fail(c, err)
	}

	cancelled, err := h.Waitlist.CancelForVisitTx(ctx, tx, detail.VisitID)
	if err != nil {
		return fail(c, err)
	}
	for _, entry := range cancelled {
		err = h.Audits.InsertTx(ctx, tx, repository.AuditWaitlistCancelled, entry.ID, echo.Map{
			"visit_id":    detail.VisitID,
			"checkout_id": cr.ID,
			"from_status": entry.FromStatus,
		})
		if err != nil {
			return fail(c, err)
		}
	}

	if err := h.Resources.ReleaseTx(ctx, tx, detail.ResourceID, model.ReleaseStatus(detail.ResourceKind)); err != nil {
		return fail(c, err)
	}
	if err := h.Visits.EndVisitTx(ctx, tx, detail.VisitID, now); err != nil {
		return fail(c, err)
	}

	if cr.BanApplied {
		if err := h.Customers.ApplyBanTx(ctx, tx, detail.CustomerID, now.Add(30*24*time.Hour)); err != nil {
			return fail(c, err)
		}
	}
	if cr.FeeCents > 0 {
		note := fmt.Sprintf("late checkout %s: %d min late, %d cents charged (checkout #%d)",
			now.Format("2006-01-02"), cr.LateMinutes, cr.FeeCents, cr.ID)
		if err := h.Customers.AddPastDueTx(ctx, tx, detail.CustomerID, cr.FeeCents, note); err != nil {
			return fail(c, err)
		}
	}

	if err := h.Checkouts.MarkVerifiedTx(ctx, tx, cr.ID); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	cr.Status = model.CheckoutVerified
	h.emitEvent(ctx, queue.CheckoutCompleted, cr, detail)
	return c.JSON(http.StatusOK, echo.Map{
		"checkout_id": cr.ID,
		"resource_id": detail.ResourceID,
		"visit_id":    detail.VisitID,
		"fee_cents":   cr.FeeCents,
		"ban_applied": cr.BanApplied,
	})
}
