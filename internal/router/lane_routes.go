package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/handler"
	"github.com/iliyamo/facility-checkin/internal/middleware"
)

// RegisterLane registers the lane session command endpoints under /v1.
// All routes require a valid JWT with a staff role; the lane kiosk
// front-end talks to the server through the staff terminal's session.
// One POST route per state transition, plus the snapshot read used on
// page load and reconnect.
func RegisterLane(e *echo.Echo, h *handler.LaneHandler, jwtSecret string) {
	g := e.Group(
		"/v1/lanes",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("STAFF", "ADMIN"),
	)

	g.GET("/:lane_id/session", h.Snapshot)

	g.POST("/:lane_id/identify", h.Identify)
	g.POST("/:lane_id/language", h.SetLanguage)
	g.POST("/:lane_id/rental/propose", h.ProposeRental)
	g.POST("/:lane_id/rental/confirm", h.ConfirmRental)
	g.POST("/:lane_id/assign", h.AssignResource)
	g.POST("/:lane_id/payment-intent", h.CreatePaymentIntent)
	g.POST("/:lane_id/payment-intent/paid", h.MarkPaymentPaid)
	g.POST("/:lane_id/membership", h.SetMembershipIntent)
	g.POST("/:lane_id/membership/complete", h.CompleteMembership)
	g.POST("/:lane_id/past-due-bypass", h.SetPastDueBypass)
	g.POST("/:lane_id/kiosk-ack", h.KioskAcknowledge)
	g.POST("/:lane_id/sign", h.SignAgreement)
	g.POST("/:lane_id/reset", h.ResetLane)
}
