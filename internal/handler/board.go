package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/model"
	"github.com/iliyamo/facility-checkin/internal/repository"
)

// BoardHandler serves the front desk board: the read-only inventory
// and waitlist views plus the housekeeping and waitlist-offer actions.
type BoardHandler struct {
	Resources *repository.ResourceRepo
	Waitlist  *repository.WaitlistRepo
}

// NewBoardHandler builds a BoardHandler from its repositories.
func NewBoardHandler(resources *repository.ResourceRepo, waitlist *repository.WaitlistRepo) *BoardHandler {
	return &BoardHandler{Resources: resources, Waitlist: waitlist}
}

type resourceResp struct {
	ID        uint64  `json:"id"`
	Kind      string  `json:"kind"`
	Tier      string  `json:"tier"`
	DisplayNo uint32  `json:"display_no"`
	Status    string  `json:"status"`
	Occupied  bool    `json:"occupied"`
	OwnerID   *uint64 `json:"owner_customer_id,omitempty"`
}

type waitlistResp struct {
	ID                 uint64  `json:"id"`
	CustomerID         uint64  `json:"customer_id"`
	VisitID            *uint64 `json:"visit_id,omitempty"`
	DesiredTier        string  `json:"desired_tier"`
	BackupTier         *string `json:"backup_tier,omitempty"`
	Status             string  `json:"status"`
	ReservedResourceID *uint64 `json:"reserved_resource_id,omitempty"`
}

// ListResources handles GET /v1/resources.
// The whole inventory ordered by display number, for the desk board.
func (h *BoardHandler) ListResources(c echo.Context) error {
	resources, err := h.Resources.List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	out := make([]resourceResp, 0, len(resources))
	for _, r := range resources {
		out = append(out, resourceResp{
			ID:        r.ID,
			Kind:      r.Kind,
			Tier:      r.Tier,
			DisplayNo: r.DisplayNo,
			Status:    r.Status,
			Occupied:  r.OwnerCustomerID != nil,
			OwnerID:   r.OwnerCustomerID,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"resources": out})
}

// SetResourceStatus handles POST /v1/resources/:id/status.
// Housekeeping moves an unoccupied resource through
// DIRTY -> CLEANING -> CLEAN.  Occupied resources are rejected.
func (h *BoardHandler) SetResourceStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid resource id"})
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	switch req.Status {
	case model.ResourceDirty, model.ResourceCleaning, model.ResourceClean:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	if err := h.Resources.SetStatus(c.Request().Context(), id, req.Status); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "status updated"})
}

// ListWaitlist handles GET /v1/waitlist.
// Open (ACTIVE and OFFERED) entries in creation order.
func (h *BoardHandler) ListWaitlist(c echo.Context) error {
	entries, err := h.Waitlist.ListOpen(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	out := make([]waitlistResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, waitlistResp{
			ID:                 e.ID,
			CustomerID:         e.CustomerID,
			VisitID:            e.VisitID,
			DesiredTier:        e.DesiredTier,
			BackupTier:         e.BackupTier,
			Status:             e.Status,
			ReservedResourceID: e.ReservedResourceID,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": out})
}

// JoinWaitlist handles POST /v1/waitlist.
// Staff parks a customer on the waitlist directly, for example when a
// guest already inside the facility wants to upgrade.
func (h *BoardHandler) JoinWaitlist(c echo.Context) error {
	var req struct {
		CustomerID  uint64  `json:"customer_id"`
		VisitID     *uint64 `json:"visit_id"`
		DesiredTier string  `json:"desired_tier"`
		BackupTier  *string `json:"backup_tier"`
	}
	if err := c.Bind(&req); err != nil || req.CustomerID == 0 || !model.KnownTier(req.DesiredTier) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id and a known desired_tier are required"})
	}
	if req.BackupTier != nil && !model.KnownTier(*req.BackupTier) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown backup tier"})
	}
	id, err := h.Waitlist.Create(c.Request().Context(), req.CustomerID, req.VisitID, req.DesiredTier, req.BackupTier)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"waitlist_entry_id": id})
}

// OfferWaitlist handles POST /v1/waitlist/:id/offer.
// Staff offers a freed-up resource to an ACTIVE entry.  The resource
// is allocated for the entry's desired tier inside the transaction and
// pinned so no walk-in can take it while the customer decides.
func (h *BoardHandler) OfferWaitlist(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waitlist entry id"})
	}
	ctx := c.Request().Context()

	tx, err := h.Resources.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	entry, err := h.Waitlist.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if entry.Status != model.WaitlistActive {
		return fail(c, repository.ErrConflict)
	}
	res, err := h.Resources.AllocateForWaitlistTx(ctx, tx, entry.DesiredTier)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Waitlist.OfferTx(ctx, tx, entry.ID, res.ID); err != nil {
		return fail(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	return c.JSON(http.StatusOK, echo.Map{
		"waitlist_entry_id": entry.ID,
		"resource_id":       res.ID,
		"display_no":        res.DisplayNo,
	})
}
