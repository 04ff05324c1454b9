package careplan

import (
	"testing"
	"time"
)

func TestComputeNextTrigger(t *testing.T) {
	t.Parallel()
	at9 := TimeOfDay{Hour: 9}

	tests := []struct {
		name   string
		now    time.Time
		tod    TimeOfDay
		rule   RepeatRule
		custom *CustomRepeat
		want   time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatEveryDay,
			want: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "passed today rolls a day",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatEveryDay,
			want: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly now rolls",
			now:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatEveryDay,
			want: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatEveryWeek,
			want: time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "custom days",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatCustom, custom: &CustomRepeat{3, UnitDay},
			want: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "custom weeks",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatCustom, custom: &CustomRepeat{2, UnitWeek},
			want: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "custom month is calendar aware",
			now:  time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatCustom, custom: &CustomRepeat{1, UnitMonth},
			want: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "custom year over leap day",
			now:  time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatCustom, custom: &CustomRepeat{1, UnitYear},
			want: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "clamped to min lead",
			now:  time.Date(2024, 3, 1, 8, 59, 30, 0, time.UTC),
			tod:  at9, rule: RepeatEveryDay,
			want: time.Date(2024, 3, 1, 9, 0, 30, 0, time.UTC),
		},
		{
			name: "non recurring falls back to min lead",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			tod:  at9, rule: RepeatNotSet,
			want: time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ComputeNextTrigger(tt.now, tt.tod, tt.rule, tt.custom)
			if !got.Equal(tt.want) {
				t.Fatalf("ComputeNextTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeNextTriggerNeverBeforeMinLead(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rules := []struct {
		rule   RepeatRule
		custom *CustomRepeat
	}{
		{RepeatEveryDay, nil},
		{RepeatEveryWeek, nil},
		{RepeatCustom, &CustomRepeat{1, UnitDay}},
		{RepeatCustom, &CustomRepeat{1, UnitMonth}},
		{RepeatNotSet, nil},
	}
	for minute := 0; minute < 24*60; minute += 7 {
		now := base.Add(time.Duration(minute)*time.Minute + 13*time.Second)
		for _, r := range rules {
			for _, tod := range []TimeOfDay{{0, 0}, {9, 0}, {23, 59}} {
				got := ComputeNextTrigger(now, tod, r.rule, r.custom)
				if got.Before(now.Add(MinLead)) {
					t.Fatalf("now=%v tod=%v rule=%v: got %v before now+MinLead", now, tod, r.rule, got)
				}
			}
		}
	}
}

func TestComputeNextTriggerKeepsLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("WIB", 7*3600)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, loc)
	got := ComputeNextTrigger(now, TimeOfDay{Hour: 9}, RepeatEveryDay, nil)
	if got.Location() != loc || got.Hour() != 9 || got.Day() != 2 {
		t.Fatalf("got %v, want 2024-03-02 09:00 WIB", got)
	}
}
