package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/handler"
	"github.com/iliyamo/facility-checkin/internal/middleware"
)

// RegisterCheckout registers the checkout request lifecycle endpoints
// under /v1.  All routes require a staff JWT.
func RegisterCheckout(e *echo.Echo, h *handler.CheckoutHandler, jwtSecret string) {
	g := e.Group(
		"/v1/checkouts",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("STAFF", "ADMIN"),
	)

	g.POST("", h.Submit)
	g.GET("/:id", h.Get)
	g.POST("/:id/claim", h.Claim)
	g.POST("/:id/confirm-items", h.ConfirmItems)
	g.POST("/:id/mark-fee-paid", h.MarkFeePaid)
	g.POST("/:id/complete", h.Complete)
}

// RegisterBoard registers the desk board and customer lookup routes
// under /v1.  The read endpoints sit behind the Redis response cache;
// board clients poll them on reconnect while the queue events cover
// live updates.
func RegisterBoard(e *echo.Echo, b *handler.BoardHandler, cu *handler.CustomerHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("STAFF", "ADMIN"),
	)

	reads := g.Group("")
	if cache != nil {
		reads.Use(cache)
	}
	reads.GET("/resources", b.ListResources)
	reads.GET("/waitlist", b.ListWaitlist)

	g.POST("/resources/:id/status", b.SetResourceStatus)
	g.POST("/waitlist", b.JoinWaitlist)
	g.POST("/waitlist/:id/offer", b.OfferWaitlist)

	g.GET("/customers", cu.Lookup)
	g.GET("/customers/:id", cu.Get)
}
