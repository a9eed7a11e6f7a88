// Package queue defines message payloads exchanged over the message broker.
package queue

import "encoding/json"

// Queue names used by the publisher and consumer.  Both queues are
// durable; messages are published persistent.
const (
	SessionUpdatedQueue = "session.updated"
	CheckoutEventQueue  = "checkout.events"
)

// SessionUpdatedEvent is published after every successful lane session
// mutation, strictly after the owning transaction commits.  It carries
// the full session snapshot so the push layer can forward it to the
// lane's clients without querying the primary database.
type SessionUpdatedEvent struct {
	LaneID    uint64          `json:"lane_id"`
	SessionID uint64          `json:"session_id"`
	Snapshot  json.RawMessage `json:"snapshot"`
	EmittedAt string          `json:"emitted_at"`
}

// Checkout event kinds mirroring the request lifecycle.
const (
	CheckoutRequested = "requested"
	CheckoutClaimed   = "claimed"
	CheckoutUpdated   = "updated"
	CheckoutCompleted = "completed"
)

// CheckoutEvent is published after every checkout request mutation.
// It summarises the request for desk displays and downstream audit.
type CheckoutEvent struct {
	Kind         string `json:"kind"`
	RequestID    uint64 `json:"request_id"`
	BlockID      uint64 `json:"block_id"`
	CustomerID   uint64 `json:"customer_id"`
	CustomerName string `json:"customer_name,omitempty"`
	ResourceID   uint64 `json:"resource_id"`
	ResourceKind string `json:"resource_kind"`
	LateMinutes  int    `json:"late_minutes"`
	FeeCents     int64  `json:"fee_cents"`
	BanApplied   bool   `json:"ban_applied"`
	Status       string `json:"status"`
	EmittedAt    string `json:"emitted_at"`
}
