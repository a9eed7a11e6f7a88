// Package repository defines error values that are reused across
// multiple repositories.  These sentinel values allow higher layers
// such as handlers to distinguish between failure kinds with
// errors.Is instead of inspecting free-form error shapes.  Every
// failure is detected inside the owning transaction and causes a full
// rollback, so no partial writes escape a failed command.
package repository

import "errors"

// ErrNotFound is returned when a session, request, resource or
// customer does not exist.  Handlers translate this into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation collides with existing
// state: a resource is unavailable, a duplicate open request exists, a
// claim is held by someone else, or a stale status transition was
// attempted.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrPreconditionFailed is returned when a lifecycle guard does not
// hold yet: the rental selection is not confirmed, the payment intent
// is not PAID, items are not confirmed, or the fee is unpaid.
// Handlers translate this into HTTP 412.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrCapacityExhausted is returned when allocation finds no eligible
// resource for the requested tier.  Callers should route the customer
// to the waitlist instead.
var ErrCapacityExhausted = errors.New("capacity exhausted")

// ErrForbidden is returned when the acting staff member does not own
// the claim they are operating on.  Handlers translate this into
// HTTP 403.
var ErrForbidden = errors.New("forbidden")
