package careplan

import (
	"testing"
	"time"
)

func TestParseJournalLenient(t *testing.T) {
	t.Parallel()
	raw := `[
		{"taskKey":"watering","timestamp":"2024-03-01T09:00:00Z","status":"done"},
		{"TaskKey":"Watering","Timestamp":"2024-02-28T09:00:00Z","Status":"Skipped"},
		{"taskKey":"dusting","timestamp":"2024-03-01T09:00:00Z"},
		{"taskKey":"Pruning","timestamp":"yesterday"},
		{"taskKey":"Pruning","timestamp":"2024-03-01T10:00:00Z","status":"maybe"},
		"garbage"
	]`
	entries := ParseJournal(raw)
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (%+v)", len(entries), entries)
	}
	if !entries[0].At.Before(entries[1].At) {
		t.Fatalf("entries not sorted oldest first")
	}
	if entries[0].Status != StatusSkipped || entries[1].Status != StatusDone {
		t.Fatalf("statuses = %v, %v", entries[0].Status, entries[1].Status)
	}
	if got := ParseJournal("{not json"); len(got) != 0 {
		t.Fatalf("malformed journal should be empty, got %v", got)
	}
}

func TestDayStatusLatestWins(t *testing.T) {
	t.Parallel()
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []JournalEntry{
		{Task: Watering, At: d.Add(8 * time.Hour), Status: StatusDone},
		{Task: Watering, At: d.Add(18 * time.Hour), Status: StatusSkipped},
		{Task: Watering, At: d.Add(30 * time.Hour), Status: StatusDone},
		{Task: Pruning, At: d.Add(20 * time.Hour), Status: StatusDone},
	}
	st, ok := DayStatus(entries, Watering, d.Add(12*time.Hour))
	if !ok || st != StatusSkipped {
		t.Fatalf("DayStatus = %v %v, want Skipped", st, ok)
	}
	if _, ok := DayStatus(entries, Humidity, d); ok {
		t.Fatalf("expected no status for humidity")
	}
}

func TestRemoveForDayAndLastPerformed(t *testing.T) {
	t.Parallel()
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []JournalEntry{
		{Task: Watering, At: d.Add(-24 * time.Hour), Status: StatusDone},
		{Task: Watering, At: d.Add(9 * time.Hour), Status: StatusDone},
		{Task: Pruning, At: d.Add(9 * time.Hour), Status: StatusDone},
	}
	out, n := RemoveForDay(entries, Watering, d)
	if n != 1 || len(out) != 2 {
		t.Fatalf("removed %d, kept %d", n, len(out))
	}
	last, ok := LastPerformed(out, Watering)
	if !ok || !last.Equal(d.Add(-24*time.Hour)) {
		t.Fatalf("LastPerformed = %v %v", last, ok)
	}
}

func TestFromPlantFillsLastPerformed(t *testing.T) {
	t.Parallel()
	plan, entries := FromPlant(
		`{"Watering":{"Repeat":"EveryWeek","LastPerformedAt":"2024-01-01T00:00:00Z"},"Pruning":{"Repeat":"EveryDay"}}`,
		`[{"taskKey":"Watering","timestamp":"2024-02-01T08:00:00Z"}]`,
	)
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	want := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	if !plan[Watering].LastPerformedAt.Equal(want) {
		t.Fatalf("watering last = %v, want %v", plan[Watering].LastPerformedAt, want)
	}
	if plan[Pruning].HasLastPerformed() {
		t.Fatalf("pruning should have no anchor")
	}
}

func TestEncodeJournalRoundTrip(t *testing.T) {
	t.Parallel()
	in := []JournalEntry{{ID: "j1", Task: Humidity, At: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Status: StatusSkipped}}
	b, err := EncodeJournal(in)
	if err != nil {
		t.Fatalf("EncodeJournal: %v", err)
	}
	out := ParseJournal(b)
	if len(out) != 1 || out[0].ID != "j1" || out[0].Task != Humidity || out[0].Status != StatusSkipped || !out[0].At.Equal(in[0].At) {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}
