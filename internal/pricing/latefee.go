package pricing

import "time"

// LateEventThresholdMin is the lateness, in minutes, at which a
// late-checkout audit event is recorded regardless of the fee.
const LateEventThresholdMin = 30

// LateMinutes returns how many whole minutes now lies past the
// scheduled end.  It is zero for any now at or before the scheduled
// end and grows monotonically afterwards.
func LateMinutes(now, scheduledEnd time.Time) int {
	if !now.After(scheduledEnd) {
		return 0
	}
	return int(now.Sub(scheduledEnd) / time.Minute)
}

// lateFeeSteps is the monotonic fee table.  Each step applies from
// its threshold (inclusive) up to the next step's threshold.
var lateFeeSteps = []struct {
	fromMin int
	cents   int64
	ban     bool
}{
	{0, 0, false},
	{1, 500, false},
	{16, 1000, false},
	{30, 2000, true},
	{60, 4000, true},
}

// LateFee maps late minutes to the fee owed and whether a ban is
// applied on completion.  The table is a step function: both the fee
// and the ban flag are non-decreasing in lateness.
func LateFee(lateMinutes int) (feeCents int64, banApplied bool) {
	for _, step := range lateFeeSteps {
		if lateMinutes >= step.fromMin {
			feeCents = step.cents
			banApplied = step.ban
		}
	}
	return feeCents, banApplied
}
