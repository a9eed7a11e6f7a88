package model

import "time"

// Customer is a person known to the facility.  Customers are looked up
// (or created) by phone number when they are identified at a lane.
//
// Fields:
//  ID                  – primary key identifier.
//  FullName            – display name.
//  Phone               – unique phone number used for identification.
//  Language            – preferred language code (e.g. "en", "fi").
//  BirthDate           – used by pricing for age-based rates (nullable).
//  MembershipExpiresAt – end of the current membership period (nullable).
//  PastDueCents        – running unpaid balance from late fees.
//  BannedUntil         – ban expiry from a late checkout (nullable).
//  Notes               – append-only free text maintained by the system
//                        and staff (fee charges are documented here).
//  CreatedAt           – when the customer was registered.
//  UpdatedAt           – last modification time.
type Customer struct {
	ID                  uint64     // customers.id
	FullName            string     // customers.full_name
	Phone               string     // customers.phone
	Language            string     // customers.language
	BirthDate           *time.Time // customers.birth_date (nullable)
	MembershipExpiresAt *time.Time // customers.membership_expires_at (nullable)
	PastDueCents        int64      // customers.past_due_cents
	BannedUntil         *time.Time // customers.banned_until (nullable)
	Notes               string     // customers.notes
	CreatedAt           time.Time  // customers.created_at
	UpdatedAt           time.Time  // customers.updated_at
}

// MemberAt reports whether the customer has a valid membership at the
// given instant.
func (c *Customer) MemberAt(now time.Time) bool {
	return c.MembershipExpiresAt != nil && c.MembershipExpiresAt.After(now)
}

// BannedAt reports whether the customer is banned at the given instant.
func (c *Customer) BannedAt(now time.Time) bool {
	return c.BannedUntil != nil && c.BannedUntil.After(now)
}

// AgeAt returns the customer's age in full years at the given instant.
// Customers without a recorded birth date are treated as adults; the
// returned age is then -1 and pricing applies the default rate.
func (c *Customer) AgeAt(now time.Time) int {
	if c.BirthDate == nil {
		return -1
	}
	b := *c.BirthDate
	years := now.Year() - b.Year()
	anniversary := time.Date(now.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	if now.Before(anniversary) {
		years--
	}
	return years
}
