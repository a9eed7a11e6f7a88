package model

import (
	"encoding/json"
	"time"
)

// Lane session statuses.  The lifecycle is strictly forward; the only
// way back is a full reset, which terminates the session and frees the
// lane.
const (
	SessionIdle               = "IDLE"
	SessionActive             = "ACTIVE"
	SessionAwaitingAssignment = "AWAITING_ASSIGNMENT"
	SessionAwaitingPayment    = "AWAITING_PAYMENT"
	SessionAwaitingSignature  = "AWAITING_SIGNATURE"
	SessionCompleted          = "COMPLETED"
)

// Actors that can propose or confirm a rental selection.  A selection
// is confirmed only when the proposing and confirming sides differ.
const (
	ActorCustomer = "CUSTOMER"
	ActorStaff    = "STAFF"
)

// sessionForward enumerates the allowed forward edges of the lane
// session lifecycle.  RESET is not listed: it jumps to COMPLETED from
// any status and is handled separately.
var sessionForward = map[string][]string{
	SessionIdle:               {SessionActive},
	SessionActive:             {SessionAwaitingAssignment},
	SessionAwaitingAssignment: {SessionAwaitingPayment},
	SessionAwaitingPayment:    {SessionAwaitingSignature},
	SessionAwaitingSignature:  {SessionCompleted},
}

// SessionCanAdvance reports whether the lifecycle permits moving from
// one status directly to another.  Staying on the same status is
// always allowed, since most commands iterate within a phase.
func SessionCanAdvance(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range sessionForward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LaneSession is the mutable record of one in-progress customer
// interaction at one lane.  Exactly one session per lane may be in a
// non-terminal status at a time; the repository enforces that inside
// the creating transaction.  Resource fields are a reservation only:
// the resource row itself is untouched until the agreement is signed.
//
// Fields:
//  ID                  – primary key identifier.
//  LaneID              – lane this session runs at.
//  Status              – lifecycle status, see constants above.
//  CustomerID          – identified customer (nullable until identify).
//  DesiredRentalType   – tier the customer initially asked for (nullable).
//  ProposedRentalType  – tier currently proposed (nullable).
//  ProposedBy          – actor who made the proposal (nullable).
//  ConfirmedRentalType – tier agreed by both sides (nullable).
//  ConfirmedBy         – actor who confirmed (nullable).
//  ResourceKind        – kind of the reserved resource (nullable).
//  ResourceID          – reserved resource (nullable; reservation only).
//  PaymentIntentID     – latest payment intent (nullable).
//  Quote               – mirror of the latest quote for display (nullable).
//  MembershipIntent    – customer wants the 6-month membership add-on.
//  PastDueBypass       – staff waived the past-due block for this visit.
//  KioskAckAt          – when the lane kiosk acknowledged (nullable).
//  AgreementSignedAt   – when the agreement was signed (nullable).
//  CreatedAt           – creation timestamp.
//  UpdatedAt           – last update timestamp.
type LaneSession struct {
	ID                  uint64          // lane_sessions.id
	LaneID              uint64          // lane_sessions.lane_id
	Status              string          // lane_sessions.status
	CustomerID          *uint64         // lane_sessions.customer_id (nullable)
	DesiredRentalType   *string         // lane_sessions.desired_rental_type (nullable)
	ProposedRentalType  *string         // lane_sessions.proposed_rental_type (nullable)
	ProposedBy          *string         // lane_sessions.proposed_by (nullable)
	ConfirmedRentalType *string         // lane_sessions.confirmed_rental_type (nullable)
	ConfirmedBy         *string         // lane_sessions.confirmed_by (nullable)
	ResourceKind        *string         // lane_sessions.resource_kind (nullable)
	ResourceID          *uint64         // lane_sessions.resource_id (nullable)
	PaymentIntentID     *uint64         // lane_sessions.payment_intent_id (nullable)
	Quote               json.RawMessage // lane_sessions.quote (nullable JSON)
	MembershipIntent    bool            // lane_sessions.membership_intent
	PastDueBypass       bool            // lane_sessions.past_due_bypass
	KioskAckAt          *time.Time      // lane_sessions.kiosk_ack_at (nullable)
	AgreementSignedAt   *time.Time      // lane_sessions.agreement_signed_at (nullable)
	CreatedAt           time.Time       // lane_sessions.created_at
	UpdatedAt           time.Time       // lane_sessions.updated_at
}

// Terminal reports whether the session has finished and the lane may
// be reused.
func (s *LaneSession) Terminal() bool { return s.Status == SessionCompleted }

// SelectionConfirmed reports whether a rental type has been agreed by
// both sides.  Payment intents may only be created after this point.
func (s *LaneSession) SelectionConfirmed() bool { return s.ConfirmedRentalType != nil }

// ConfirmsProposal reports whether an actor confirming rentalType
// closes the open proposal: the types must match and the confirming
// side must differ from the proposing side.
func (s *LaneSession) ConfirmsProposal(rentalType, actor string) bool {
	if s.ProposedRentalType == nil || s.ProposedBy == nil {
		return false
	}
	return *s.ProposedRentalType == rentalType && *s.ProposedBy != actor
}

// ResourceReserved reports whether a resource has been reserved on the
// session.  The reservation may be replaced any number of times before
// signing.
func (s *LaneSession) ResourceReserved() bool {
	return s.ResourceKind != nil && s.ResourceID != nil
}
