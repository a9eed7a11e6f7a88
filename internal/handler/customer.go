package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/model"
	"github.com/iliyamo/facility-checkin/internal/repository"
)

// CustomerHandler serves staff-facing customer lookups.
type CustomerHandler struct {
	Customers *repository.CustomerRepo
}

// NewCustomerHandler builds a CustomerHandler.
func NewCustomerHandler(customers *repository.CustomerRepo) *CustomerHandler {
	return &CustomerHandler{Customers: customers}
}

type customerResp struct {
	ID                  uint64     `json:"id"`
	FullName            string     `json:"full_name"`
	Phone               string     `json:"phone"`
	Language            string     `json:"language"`
	BirthDate           *time.Time `json:"birth_date,omitempty"`
	Member              bool       `json:"member"`
	MembershipExpiresAt *time.Time `json:"membership_expires_at,omitempty"`
	PastDueCents        int64      `json:"past_due_cents"`
	Banned              bool       `json:"banned"`
	BannedUntil         *time.Time `json:"banned_until,omitempty"`
	Notes               string     `json:"notes"`
}

func toCustomerResp(c *model.Customer, now time.Time) customerResp {
	return customerResp{
		ID:                  c.ID,
		FullName:            c.FullName,
		Phone:               c.Phone,
		Language:            c.Language,
		BirthDate:           c.BirthDate,
		Member:              c.MemberAt(now),
		MembershipExpiresAt: c.MembershipExpiresAt,
		PastDueCents:        c.PastDueCents,
		Banned:              c.BannedAt(now),
		BannedUntil:         c.BannedUntil,
		Notes:               c.Notes,
	}
}

// Get handles GET /v1/customers/:id.
func (h *CustomerHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid customer id"})
	}
	cust, err := h.Customers.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toCustomerResp(cust, time.Now().UTC()))
}

// Lookup handles GET /v1/customers?phone=...
// Staff searches a returning customer by phone number before starting
// a lane session.
func (h *CustomerHandler) Lookup(c echo.Context) error {
	phone := strings.TrimSpace(c.QueryParam("phone"))
	if phone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone query parameter is required"})
	}
	cust, err := h.Customers.GetByPhone(c.Request().Context(), phone)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toCustomerResp(cust, time.Now().UTC()))
}
