package model

import "time"

// Resource kinds.  A resource is either a room or a locker; both share
// the same inventory table and allocation path.
const (
	ResourceKindRoom   = "ROOM"
	ResourceKindLocker = "LOCKER"
)

// Resource tiers.  Rooms come in three tiers; lockers are uniform and
// use the dedicated LOCKER tier.  The tier doubles as the rental type
// a customer selects at the lane.
const (
	TierStandard = "STANDARD"
	TierDouble   = "DOUBLE"
	TierSpecial  = "SPECIAL"
	TierLocker   = "LOCKER"
)

// Resource cleanliness statuses.  A resource cycles
// CLEAN -> (occupied) -> DIRTY -> CLEANING -> CLEAN.  Occupancy is not
// a status of its own; it is expressed by OwnerCustomerID being set.
const (
	ResourceDirty    = "DIRTY"
	ResourceCleaning = "CLEANING"
	ResourceClean    = "CLEAN"
)

// KnownTier reports whether s is one of the recognised tier values.
func KnownTier(s string) bool {
	switch s {
	case TierStandard, TierDouble, TierSpecial, TierLocker:
		return true
	}
	return false
}

// Resource represents one physical room or locker in the facility.
// Inventory is fixed at provisioning time; the normal flow only ever
// changes Status and OwnerCustomerID.
//
// Fields:
//  ID              – primary key identifier.
//  Kind            – ROOM or LOCKER.
//  Tier            – resource tier (STANDARD/DOUBLE/SPECIAL/LOCKER).
//  DisplayNo       – stable display number used for ordering and signage.
//  Status          – cleanliness status (DIRTY/CLEANING/CLEAN).
//  OwnerCustomerID – customer currently occupying the resource (nullable).
//  CreatedAt       – when the row was provisioned.
//  UpdatedAt       – last modification time.
type Resource struct {
	ID              uint64     // resources.id
	Kind            string     // resources.kind
	Tier            string     // resources.tier
	DisplayNo       uint32     // resources.display_no
	Status          string     // resources.status
	OwnerCustomerID *uint64    // resources.owner_customer_id (nullable)
	CreatedAt       time.Time  // resources.created_at
	UpdatedAt       time.Time  // resources.updated_at
}

// Assignable reports whether the resource may be handed to a new
// customer: it must be CLEAN and have no current owner.
func (r *Resource) Assignable() bool {
	return r.Status == ResourceClean && r.OwnerCustomerID == nil
}

// ReleaseStatus returns the cleanliness status a resource takes when
// its occupant checks out.  Rooms need housekeeping; lockers go
// straight back into rotation.
func ReleaseStatus(kind string) string {
	if kind == ResourceKindLocker {
		return ResourceClean
	}
	return ResourceDirty
}
