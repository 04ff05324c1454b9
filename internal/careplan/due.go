package careplan

import "time"

// IsDueToday reports whether task's interval has elapsed as of the calendar
// day of today (in today's location).
//
// A task without a last-performed anchor is never due. Day differences are
// taken between calendar dates, not between instants.
func IsDueToday(task CareTask, today time.Time) bool {
	if !task.HasLastPerformed() {
		return false
	}
	last := task.LastPerformedAt.In(today.Location())

	switch task.Repeat {
	case RepeatEveryDay:
		return true
	case RepeatEveryWeek:
		return dayDiff(last, today) >= 7
	case RepeatCustom:
		c := task.Custom
		if c == nil || c.Value < 1 {
			return false
		}
		switch c.Unit {
		case UnitDay:
			return dayDiff(last, today) >= c.Value
		case UnitWeek:
			return dayDiff(last, today) >= c.Value*7
		case UnitMonth:
			return monthDiff(last, today) >= c.Value
		case UnitYear:
			return today.Year()-last.Year() >= c.Value
		}
	}
	return false
}

// dayDiff counts calendar days from a to b, both truncated to midnight.
// Dates are re-anchored in UTC so DST shifts cannot produce 23h or 25h days.
func dayDiff(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / (24 * time.Hour))
}

func monthDiff(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
