package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// staffKey returns a stable identity string for per-staff rate-limit
// keys.  It prefers the "user_id" context value set by JWTAuth;
// unauthenticated callers (the login and refresh routes) all share the
// "anon" bucket.
func staffKey(c echo.Context) string {
	v := c.Get("user_id")
	if v == nil {
		return "anon"
	}
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		return fmt.Sprintf("%.0f", t)
	case uint64:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	}
	return "anon"
}
