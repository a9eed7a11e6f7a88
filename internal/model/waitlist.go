package model

import "time"

// Waitlist entry statuses.  ACTIVE entries count as demand that shifts
// allocation past that many free resources of the tier.  OFFERED
// entries pin one specific resource so no other allocation can take
// it.  CANCELLED is terminal.
const (
	WaitlistActive    = "ACTIVE"
	WaitlistOffered   = "OFFERED"
	WaitlistCancelled = "CANCELLED"
)

// WaitlistEntry records a customer waiting for a resource tier to free
// up.  Entries are tied to the customer's open visit and are cancelled
// automatically when that visit checks out.
//
// Fields:
//  ID                 – primary key identifier.
//  CustomerID         – customer on the waitlist.
//  VisitID            – open visit this wait belongs to (nullable for
//                       customers waiting before check-in).
//  DesiredTier        – tier the customer asked for.
//  BackupTier         – tier acceptable as a fallback (nullable).
//  Status             – ACTIVE, OFFERED or CANCELLED.
//  ReservedResourceID – resource pinned for an OFFERED entry (nullable).
//  CreatedAt          – when the entry was created.
//  UpdatedAt          – last modification time.
type WaitlistEntry struct {
	ID                 uint64     // waitlist_entries.id
	CustomerID         uint64     // waitlist_entries.customer_id
	VisitID            *uint64    // waitlist_entries.visit_id (nullable)
	DesiredTier        string     // waitlist_entries.desired_tier
	BackupTier         *string    // waitlist_entries.backup_tier (nullable)
	Status             string     // waitlist_entries.status
	ReservedResourceID *uint64    // waitlist_entries.reserved_resource_id (nullable)
	CreatedAt          time.Time  // waitlist_entries.created_at
	UpdatedAt          time.Time  // waitlist_entries.updated_at
}
