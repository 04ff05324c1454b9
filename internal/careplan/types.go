package careplan

import (
	"fmt"
	"strings"
	"time"
)

// TaskKey identifies one of the fixed care task types.
type TaskKey string

const (
	Watering  TaskKey = "Watering"
	Fertilize TaskKey = "Fertilize"
	Repotting TaskKey = "Repotting"
	Pruning   TaskKey = "Pruning"
	Humidity  TaskKey = "Humidity"
	Soilcheck TaskKey = "Soilcheck"
)

// TaskKeys lists every task type in display order.
var TaskKeys = []TaskKey{Watering, Fertilize, Repotting, Pruning, Humidity, Soilcheck}

// ParseTaskKey matches s against the known task keys, ignoring case.
func ParseTaskKey(s string) (TaskKey, bool) {
	s = strings.TrimSpace(s)
	for _, k := range TaskKeys {
		if strings.EqualFold(s, string(k)) {
			return k, true
		}
	}
	return "", false
}

// RepeatRule is the recurrence rule of a care task.
type RepeatRule int

const (
	RepeatNotSet RepeatRule = iota
	RepeatEveryDay
	RepeatEveryWeek
	RepeatCustom
)

func (r RepeatRule) String() string {
	switch r {
	case RepeatEveryDay:
		return "EveryDay"
	case RepeatEveryWeek:
		return "EveryWeek"
	case RepeatCustom:
		return "Custom"
	default:
		return "NotSet"
	}
}

// ParseRepeatRule accepts the canonical names and the spellings seen in stored
// care plans ("Every day", "every_week", "daily", ...). Unknown values are NotSet.
func ParseRepeatRule(s string) RepeatRule {
	switch squash(s) {
	case "everyday", "daily", "day":
		return RepeatEveryDay
	case "everyweek", "weekly", "week":
		return RepeatEveryWeek
	case "custom":
		return RepeatCustom
	default:
		return RepeatNotSet
	}
}

// Unit is the unit of a custom repeat interval.
type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// ParseUnit accepts singular, plural and one-letter forms.
func ParseUnit(s string) (Unit, bool) {
	switch squash(s) {
	case "day", "days", "d":
		return UnitDay, true
	case "week", "weeks", "w":
		return UnitWeek, true
	case "month", "months", "m":
		return UnitMonth, true
	case "year", "years", "y":
		return UnitYear, true
	}
	return "", false
}

// CustomRepeat is "every Value Units". Value is always >= 1.
type CustomRepeat struct {
	Value int
	Unit  Unit
}

// Serialize renders the canonical form used in notification group keys.
func (c *CustomRepeat) Serialize() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf(`{"value":%d,"unit":%q}`, c.Value, string(c.Unit))
}

func (c *CustomRepeat) String() string {
	if c == nil {
		return ""
	}
	if c.Value == 1 {
		return fmt.Sprintf("every %s", c.Unit)
	}
	return fmt.Sprintf("every %d %ss", c.Value, c.Unit)
}

// TimeOfDay is a wall-clock time used as the recurrence anchor.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// DefaultTimeOfDay is used when a task carries no usable time.
var DefaultTimeOfDay = TimeOfDay{Hour: 9}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// On returns the instant at t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// CareTask is one normalized task of a plant's care plan.
type CareTask struct {
	Key                 TaskKey
	NotificationEnabled bool
	Repeat              RepeatRule
	// Custom is set only when Repeat is RepeatCustom.
	Custom *CustomRepeat
	Time   TimeOfDay
	// LastPerformedAt is zero when the task has never been journaled.
	LastPerformedAt time.Time
}

// HasLastPerformed reports whether the task has a last-performed anchor.
func (t CareTask) HasLastPerformed() bool { return !t.LastPerformedAt.IsZero() }

// Recurring reports whether the task has a usable recurrence rule.
func (t CareTask) Recurring() bool {
	switch t.Repeat {
	case RepeatEveryDay, RepeatEveryWeek:
		return true
	case RepeatCustom:
		return t.Custom != nil && t.Custom.Value > 0
	}
	return false
}

// Schedulable reports whether a reminder should exist for the task.
func (t CareTask) Schedulable() bool { return t.NotificationEnabled && t.Recurring() }

// CarePlan holds the tasks present in a plant's care plan.
type CarePlan map[TaskKey]CareTask

// Tasks returns the present tasks in TaskKeys order.
func (p CarePlan) Tasks() []CareTask {
	out := make([]CareTask, 0, len(p))
	for _, k := range TaskKeys {
		if t, ok := p[k]; ok {
			t.Key = k
			out = append(out, t)
		}
	}
	return out
}

// squash lowercases s and drops separators so "Every day", "every_day" and
// "EveryDay" compare equal.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
