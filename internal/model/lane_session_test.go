package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionCanAdvance(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{SessionIdle, SessionActive, true},
		{SessionActive, SessionAwaitingAssignment, true},
		{SessionAwaitingAssignment, SessionAwaitingPayment, true},
		{SessionAwaitingPayment, SessionAwaitingSignature, true},
		{SessionAwaitingSignature, SessionCompleted, true},
		// same status is always allowed
		{SessionActive, SessionActive, true},
		// no skipping forward
		{SessionActive, SessionAwaitingPayment, false},
		{SessionActive, SessionCompleted, false},
		// no going back
		{SessionAwaitingPayment, SessionActive, false},
		{SessionCompleted, SessionActive, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, SessionCanAdvance(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestConfirmsProposal(t *testing.T) {
	tier := TierDouble
	actor := ActorCustomer
	s := &LaneSession{ProposedRentalType: &tier, ProposedBy: &actor}

	assert.True(t, s.ConfirmsProposal(TierDouble, ActorStaff))
	// the proposing side cannot confirm its own proposal
	assert.False(t, s.ConfirmsProposal(TierDouble, ActorCustomer))
	// confirming a different type does not close the proposal
	assert.False(t, s.ConfirmsProposal(TierSpecial, ActorStaff))

	var none LaneSession
	assert.False(t, none.ConfirmsProposal(TierDouble, ActorStaff))
}

func TestClaimExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	expires := now.Add(ClaimTTL)
	staffID := uint64(7)
	r := &CheckoutRequest{
		Status:         CheckoutClaimed,
		ClaimedBy:      &staffID,
		ClaimExpiresAt: &expires,
	}

	assert.False(t, r.ClaimExpired(now))
	assert.False(t, r.ClaimExpired(expires.Add(-time.Second)))
	// expiry boundary is inclusive
	assert.True(t, r.ClaimExpired(expires))
	assert.True(t, r.ClaimExpired(expires.Add(time.Second)))

	unclaimed := &CheckoutRequest{Status: CheckoutSubmitted}
	assert.False(t, unclaimed.ClaimExpired(now))
}

func TestCompletable(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	expires := now.Add(ClaimTTL)
	staffID := uint64(7)
	base := CheckoutRequest{
		Status:         CheckoutClaimed,
		ClaimedBy:      &staffID,
		ClaimExpiresAt: &expires,
		ItemsConfirmed: true,
	}

	free := base
	assert.True(t, free.Completable(staffID, now))

	other := base
	assert.False(t, other.Completable(staffID+1, now), "only the claimant may complete")

	lapsed := base
	assert.False(t, lapsed.Completable(staffID, expires), "a lapsed claim cannot complete")

	unchecked := base
	unchecked.ItemsConfirmed = false
	assert.False(t, unchecked.Completable(staffID, now))

	unpaid := base
	unpaid.FeeCents = 2000
	assert.False(t, unpaid.Completable(staffID, now), "a nonzero fee must be settled")
	unpaid.FeePaid = true
	assert.True(t, unpaid.Completable(staffID, now))
}

func TestReleaseStatus(t *testing.T) {
	assert.Equal(t, ResourceDirty, ReleaseStatus(ResourceKindRoom))
	assert.Equal(t, ResourceClean, ReleaseStatus(ResourceKindLocker))
}

func TestMemberAndBanWindows(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)
	earlier := now.Add(-24 * time.Hour)

	c := &Customer{MembershipExpiresAt: &later, BannedUntil: &later}
	assert.True(t, c.MemberAt(now))
	assert.True(t, c.BannedAt(now))

	c = &Customer{MembershipExpiresAt: &earlier, BannedUntil: &earlier}
	assert.False(t, c.MemberAt(now))
	assert.False(t, c.BannedAt(now))

	var blank Customer
	assert.False(t, blank.MemberAt(now))
	assert.False(t, blank.BannedAt(now))
	assert.Equal(t, -1, blank.AgeAt(now))

	birth := time.Date(2010, 3, 15, 0, 0, 0, 0, time.UTC)
	c = &Customer{BirthDate: &birth}
	assert.Equal(t, 15, c.AgeAt(now), "birthday tomorrow, still 15")
	birth = time.Date(2010, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 16, c.AgeAt(now), "birthday today counts")
}
