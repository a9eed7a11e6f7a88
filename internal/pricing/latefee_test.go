package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLateMinutesZeroBeforeEnd(t *testing.T) {
	end := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, LateMinutes(end.Add(-2*time.Hour), end))
	assert.Equal(t, 0, LateMinutes(end, end))
	assert.Equal(t, 0, LateMinutes(end.Add(30*time.Second), end))
}

func TestLateMinutesMonotonic(t *testing.T) {
	end := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := 0
	for m := 0; m <= 180; m += 5 {
		got := LateMinutes(end.Add(time.Duration(m)*time.Minute), end)
		assert.GreaterOrEqual(t, got, prev)
		assert.Equal(t, m, got)
		prev = got
	}
}

func TestLateFeeSteps(t *testing.T) {
	cases := []struct {
		minutes int
		fee     int64
		ban     bool
	}{
		{0, 0, false},
		{1, 500, false},
		{15, 500, false},
		{16, 1000, false},
		{29, 1000, false},
		{30, 2000, true},
		{45, 2000, true},
		{60, 4000, true},
		{600, 4000, true},
	}
	for _, tc := range cases {
		fee, ban := LateFee(tc.minutes)
		assert.Equal(t, tc.fee, fee, "minutes=%d", tc.minutes)
		assert.Equal(t, tc.ban, ban, "minutes=%d", tc.minutes)
	}
}

func TestLateFeeMonotonic(t *testing.T) {
	var prevFee int64
	prevBan := false
	for m := 0; m <= 240; m++ {
		fee, ban := LateFee(m)
		assert.GreaterOrEqual(t, fee, prevFee, "fee decreased at %d", m)
		if prevBan {
			assert.True(t, ban, "ban cleared at %d", m)
		}
		prevFee, prevBan = fee, ban
	}
}

func TestForCheckinBreakdown(t *testing.T) {
	q := ForCheckin("STANDARD", 30, false, false)
	assert.Equal(t, int64(3200), q.TotalCents)
	assert.Len(t, q.Lines, 1)

	q = ForCheckin("STANDARD", 16, false, false)
	assert.Equal(t, int64(3200-800), q.TotalCents)

	q = ForCheckin("DOUBLE", -1, true, true)
	assert.Equal(t, int64(5400-500+MembershipCents), q.TotalCents)
	assert.Len(t, q.Lines, 3)
}

func TestForCheckinUnknownTierFallsBack(t *testing.T) {
	q := ForCheckin("PENTHOUSE", -1, false, false)
	assert.Equal(t, int64(3200), q.TotalCents)
}
