package model

import "time"

// Visit groups the consecutive checkin blocks of one continuous stay.
// Renewals reuse the open visit instead of opening a new one.  A visit
// ends when its checkout completes.
type Visit struct {
	ID        uint64     // visits.id
	CustomerID uint64    // visits.customer_id
	StartedAt time.Time  // visits.started_at
	EndedAt   *time.Time // visits.ended_at (nullable while open)
	CreatedAt time.Time  // visits.created_at
}

// Open reports whether the visit is still in progress.
func (v *Visit) Open() bool { return v.EndedAt == nil }

// CheckinBlock records a customer actually holding a resource for the
// interval [StartsAt, EndsAt).  Blocks are created only when the
// agreement is signed; everything before that is a reservation on the
// lane session.
//
// Fields:
//  ID         – primary key identifier.
//  VisitID    – visit this block belongs to.
//  ResourceID – resource being occupied.
//  StartsAt   – start of the occupancy interval.
//  EndsAt     – scheduled end of the occupancy interval.
//  CreatedAt  – creation timestamp.
type CheckinBlock struct {
	ID         uint64    // checkin_blocks.id
	VisitID    uint64    // checkin_blocks.visit_id
	ResourceID uint64    // checkin_blocks.resource_id
	StartsAt   time.Time // checkin_blocks.starts_at
	EndsAt     time.Time // checkin_blocks.ends_at
	CreatedAt  time.Time // checkin_blocks.created_at
}
