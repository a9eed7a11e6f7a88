package model

import (
	"encoding/json"
	"time"
)

// Payment intent statuses.  DUE is the only live status; PAID and
// CANCELLED are terminal.  CANCELLED is reached solely by coalescing
// when a newer intent replaces an open one.
const (
	IntentDue       = "DUE"
	IntentPaid      = "PAID"
	IntentCancelled = "CANCELLED"
)

// PaymentIntent is one atomic billing request tied to a lane session.
// At most one DUE intent may exist per session.  Once PAID it is never
// mutated again; PAID is the sole gate for signing the agreement.
//
// Fields:
//  ID          – primary key identifier.
//  SessionID   – lane session the intent bills.
//  AmountCents – total amount in cents (no partial payments).
//  Status      – DUE, PAID or CANCELLED.
//  Method      – payment method (e.g. CASH, CARD, TERMINAL).
//  Quote       – machine-readable quote breakdown, stored opaque.
//  PaidAt      – when the intent was marked paid (nullable).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type PaymentIntent struct {
	ID          uint64          // payment_intents.id
	SessionID   uint64          // payment_intents.session_id
	AmountCents int64           // payment_intents.amount_cents
	Status      string          // payment_intents.status
	Method      string          // payment_intents.method
	Quote       json.RawMessage // payment_intents.quote (JSON)
	PaidAt      *time.Time      // payment_intents.paid_at (nullable)
	CreatedAt   time.Time       // payment_intents.created_at
	UpdatedAt   time.Time       // payment_intents.updated_at
}
