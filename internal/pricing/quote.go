// Package pricing holds the quoting function consumed by the lane
// session flow and the late-fee table consumed by checkout.  The rest
// of the core treats both as opaque: it stores and forwards the quote
// breakdown without interpreting its lines.
package pricing

import (
	"encoding/json"
	"time"
)

// QuoteLine is one human-readable line of a quote breakdown.  Amounts
// are in cents and may be negative for discounts.
type QuoteLine struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

// Quote is the machine-readable billing breakdown for one check-in.
// It is mirrored onto the lane session for display and stored on the
// payment intent it prices.
type Quote struct {
	RentalType string      `json:"rental_type"`
	Lines      []QuoteLine `json:"lines"`
	TotalCents int64       `json:"total_cents"`
}

// JSON serialises the quote for storage.  Marshalling a Quote cannot
// fail, so errors are swallowed.
func (q Quote) JSON() json.RawMessage {
	b, _ := json.Marshal(q)
	return b
}

// StayDuration returns the scheduled rental interval for a rental
// type.  The interval anchors the scheduled end of the check-in block;
// overstays past it are charged the late-fee table.
func StayDuration(rentalType string) time.Duration {
	if rentalType == "LOCKER" {
		return 4 * time.Hour
	}
	return 12 * time.Hour
}

// Base rates per rental type, in cents.
var baseCents = map[string]int64{
	"STANDARD": 3200,
	"DOUBLE":   5400,
	"SPECIAL":  7800,
	"LOCKER":   1500,
}

// MembershipCents is the price of the optional 6-month membership
// add-on.
const MembershipCents int64 = 9900

// ForCheckin computes the quote for one check-in.  Customers under 18
// pay a reduced youth rate, members get a flat discount, and the
// optional membership purchase is added as its own line.  A negative
// age means "unknown" and takes the default rate.
func ForCheckin(rentalType string, age int, member bool, membershipAddOn bool) Quote {
	base, ok := baseCents[rentalType]
	if !ok {
		base = baseCents["STANDARD"]
	}
	q := Quote{RentalType: rentalType}
	q.Lines = append(q.Lines, QuoteLine{Label: "rental " + rentalType, AmountCents: base})
	total := base
	if age >= 0 && age < 18 {
		youth := -base / 4
		q.Lines = append(q.Lines, QuoteLine{Label: "youth rate", AmountCents: youth})
		total += youth
	}
	if member {
		q.Lines = append(q.Lines, QuoteLine{Label: "member discount", AmountCents: -500})
		total += -500
	}
	if membershipAddOn {
		q.Lines = append(q.Lines, QuoteLine{Label: "membership 6 months", AmountCents: MembershipCents})
		total += MembershipCents
	}
	if total < 0 {
		total = 0
	}
	q.TotalCents = total
	return q
}
