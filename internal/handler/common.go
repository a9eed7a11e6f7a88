package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/repository"
)

// getStaffID extracts the staff id placed into the context by the JWT
// middleware and converts it to uint64.
func getStaffID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a numeric path parameter; zero is treated as invalid.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// failureStatus maps the repository error taxonomy to HTTP codes and a
// machine-distinguishable reason string.  Anything outside the taxonomy
// is an internal error; the transaction boundary already guaranteed no
// partial writes were persisted.
func failureStatus(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrCapacityExhausted):
		return http.StatusConflict, "capacity_exhausted"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "precondition_failed"
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes the structured failure response for err.
func fail(c echo.Context, err error) error {
	status, reason := failureStatus(err)
	return c.JSON(status, echo.Map{"error": reason})
}
