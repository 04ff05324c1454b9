package careplan

import "time"

// MinLead is the minimum distance between now and a computed trigger.
const MinLead = 60 * time.Second

// ComputeNextTrigger returns the next absolute instant a reminder for the
// given rule should fire.
//
// The candidate is today at timeOfDay (in now's location). If it is not after
// now it is advanced by one recurrence unit. Anything earlier than now+MinLead
// is pushed to now+MinLead. The result is a single occurrence; the caller
// recomputes after it fires.
func ComputeNextTrigger(now time.Time, timeOfDay TimeOfDay, rule RepeatRule, custom *CustomRepeat) time.Time {
	candidate := timeOfDay.On(now)
	if !candidate.After(now) {
		candidate = Advance(candidate, rule, custom)
	}
	if floor := now.Add(MinLead); candidate.Before(floor) {
		candidate = floor
	}
	return candidate
}

// Advance moves t forward by one recurrence unit. Month and year steps use
// calendar arithmetic (time.AddDate), so Jan 31 + 1 month normalizes to early
// March. Rules that do not recur leave t unchanged.
func Advance(t time.Time, rule RepeatRule, custom *CustomRepeat) time.Time {
	switch rule {
	case RepeatEveryDay:
		return t.AddDate(0, 0, 1)
	case RepeatEveryWeek:
		return t.AddDate(0, 0, 7)
	case RepeatCustom:
		if custom == nil || custom.Value < 1 {
			return t
		}
		n := custom.Value
		switch custom.Unit {
		case UnitDay:
			return t.AddDate(0, 0, n)
		case UnitWeek:
			return t.AddDate(0, 0, 7*n)
		case UnitMonth:
			return t.AddDate(0, n, 0)
		case UnitYear:
			return t.AddDate(n, 0, 0)
		}
	}
	return t
}
