package model

import (
	"encoding/json"
	"time"
)

// Checkout request statuses.  SUBMITTED -> CLAIMED -> VERIFIED, no
// other edges.  VERIFIED is terminal.
const (
	CheckoutSubmitted = "SUBMITTED"
	CheckoutClaimed   = "CLAIMED"
	CheckoutVerified  = "VERIFIED"
)

// ClaimTTL is how long a staff claim on a checkout request stays
// exclusive.  Expiry is evaluated lazily on the next claim attempt;
// there is no timer.
const ClaimTTL = 2 * time.Minute

// CheckoutRequest tracks the end of an occupancy: late minutes and fee
// are computed once at submission, a staff member claims the request
// exclusively, and completion releases the resource and ends the
// visit in one transaction.
//
// Fields:
//  ID             – primary key identifier.
//  BlockID        – occupancy (checkin block) being checked out.
//  KeyTag         – physical key tag handed back, if tracked (nullable).
//  Checklist      – customer-supplied checklist, stored opaque.
//  LateMinutes    – minutes past the scheduled end at submission.
//  FeeCents       – late fee computed from the fee table.
//  BanApplied     – whether completion applies a 30-day ban.
//  Status         – SUBMITTED, CLAIMED or VERIFIED.
//  ClaimedBy      – staff member holding the claim (nullable).
//  ClaimedAt      – when the claim was taken (nullable).
//  ClaimExpiresAt – when the claim lapses (nullable).
//  ItemsConfirmed – staff confirmed returned items.
//  FeePaid        – the late fee was settled at the desk.
//  CreatedAt      – submission timestamp.
//  UpdatedAt      – last update timestamp.
type CheckoutRequest struct {
	ID             uint64          // checkout_requests.id
	BlockID        uint64          // checkout_requests.block_id
	KeyTag         *string         // checkout_requests.key_tag (nullable)
	Checklist      json.RawMessage // checkout_requests.checklist (JSON)
	LateMinutes    int             // checkout_requests.late_minutes
	FeeCents       int64           // checkout_requests.fee_cents
	BanApplied     bool            // checkout_requests.ban_applied
	Status         string          // checkout_requests.status
	ClaimedBy      *uint64         // checkout_requests.claimed_by (nullable)
	ClaimedAt      *time.Time      // checkout_requests.claimed_at (nullable)
	ClaimExpiresAt *time.Time      // checkout_requests.claim_expires_at (nullable)
	ItemsConfirmed bool            // checkout_requests.items_confirmed
	FeePaid        bool            // checkout_requests.fee_paid
	CreatedAt      time.Time       // checkout_requests.created_at
	UpdatedAt      time.Time       // checkout_requests.updated_at
}

// Open reports whether the request still blocks a new submission for
// the same occupancy.
func (r *CheckoutRequest) Open() bool {
	return r.Status == CheckoutSubmitted || r.Status == CheckoutClaimed
}

// ClaimExpired reports whether an existing claim has lapsed at the
// given instant.  A request that was never claimed has no claim to
// expire.
func (r *CheckoutRequest) ClaimExpired(now time.Time) bool {
	return r.ClaimExpiresAt != nil && !now.Before(*r.ClaimExpiresAt)
}

// ClaimedByStaff reports whether the given staff member currently owns
// the claim.
func (r *CheckoutRequest) ClaimedByStaff(staffID uint64) bool {
	return r.Status == CheckoutClaimed && r.ClaimedBy != nil && *r.ClaimedBy == staffID
}

// Completable reports whether every completion guard holds for the
// given staff member at the given instant: the claim must be owned,
// items confirmed, and the fee either zero or settled.
func (r *CheckoutRequest) Completable(staffID uint64, now time.Time) bool {
	if !r.ClaimedByStaff(staffID) || r.ClaimExpired(now) {
		return false
	}
	if !r.ItemsConfirmed {
		return false
	}
	return r.FeeCents == 0 || r.FeePaid
}
