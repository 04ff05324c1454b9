package careplan

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Status is the outcome recorded by a journal entry.
type Status string

const (
	StatusDone    Status = "Done"
	StatusSkipped Status = "Skipped"
)

// ParseStatus accepts "done"/"completed" and "skipped"/"skip" in any case.
func ParseStatus(s string) (Status, bool) {
	switch squash(s) {
	case "done", "completed", "complete":
		return StatusDone, true
	case "skipped", "skip":
		return StatusSkipped, true
	}
	return "", false
}

// JournalEntry is one logged occurrence of a task being performed or skipped.
// Entries are appended, and only removed by an undo of the current day.
type JournalEntry struct {
	ID     string    `json:"id,omitempty"`
	Task   TaskKey   `json:"taskKey"`
	At     time.Time `json:"timestamp"`
	Status Status    `json:"status"`
}

// ParseJournal decodes a plant's journal leniently: JSON text or decoded
// arrays are accepted, unreadable entries are dropped, and the result is
// ordered oldest first. Timestamps without a zone are read in the local zone.
func ParseJournal(raw any) []JournalEntry { return ParseJournalIn(raw, time.Local) }

// ParseJournalIn is ParseJournal with timestamps lacking a zone read in loc.
func ParseJournalIn(raw any, loc *time.Location) []JournalEntry {
	if loc == nil {
		loc = time.Local
	}
	items := decodeArray(raw)
	out := make([]JournalEntry, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		e, ok := parseEntry(m, loc)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func parseEntry(m map[string]any, loc *time.Location) (JournalEntry, bool) {
	var e JournalEntry

	v, ok := field(m, "TaskKey")
	if !ok {
		v, ok = field(m, "Task")
	}
	s, isStr := v.(string)
	if !ok || !isStr {
		return e, false
	}
	if e.Task, ok = ParseTaskKey(s); !ok {
		return e, false
	}

	v, ok = field(m, "Timestamp")
	if !ok {
		v, ok = field(m, "Date")
	}
	if !ok {
		return e, false
	}
	if e.At, ok = parseInstant(v, loc); !ok {
		return e, false
	}

	e.Status = StatusDone
	if v, ok := field(m, "Status"); ok {
		if s, isStr := v.(string); isStr {
			st, known := ParseStatus(s)
			if !known {
				return e, false
			}
			e.Status = st
		}
	}
	if v, ok := field(m, "Id"); ok {
		if s, isStr := v.(string); isStr {
			e.ID = s
		}
	}
	return e, true
}

func decodeArray(raw any) []any {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case []JournalEntry:
		out := make([]any, 0, len(v))
		for _, e := range v {
			out = append(out, map[string]any{
				"id": e.ID, "taskKey": string(e.Task), "timestamp": e.At.Format(time.RFC3339Nano), "status": string(e.Status),
			})
		}
		return out
	default:
		return nil
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	switch x := out.(type) {
	case []any:
		return x
	case string:
		var inner []any
		if err := json.Unmarshal([]byte(x), &inner); err != nil {
			return nil
		}
		return inner
	}
	return nil
}

// EncodeJournal renders entries as a JSON array.
func EncodeJournal(entries []JournalEntry) ([]byte, error) {
	if entries == nil {
		entries = []JournalEntry{}
	}
	return json.Marshal(entries)
}

// DayStatus returns the status of key on the calendar day of day, decided by
// the most recent entry logged that day.
func DayStatus(entries []JournalEntry, key TaskKey, day time.Time) (Status, bool) {
	var (
		best  JournalEntry
		found bool
	)
	for _, e := range entries {
		if e.Task != key || !sameDay(e.At, day) {
			continue
		}
		if !found || !e.At.Before(best.At) {
			best, found = e, true
		}
	}
	return best.Status, found
}

// LastPerformed returns the time of the most recent entry for key.
func LastPerformed(entries []JournalEntry, key TaskKey) (time.Time, bool) {
	var last time.Time
	for _, e := range entries {
		if e.Task == key && e.At.After(last) {
			last = e.At
		}
	}
	return last, !last.IsZero()
}

// RemoveForDay drops every entry for key on the calendar day of day and
// reports how many were removed.
func RemoveForDay(entries []JournalEntry, key TaskKey, day time.Time) ([]JournalEntry, int) {
	out := make([]JournalEntry, 0, len(entries))
	removed := 0
	for _, e := range entries {
		if e.Task == key && sameDay(e.At, day) {
			removed++
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

// FromPlant parses a plant's care plan and fills each task's last-performed
// time from the journal when the journal is more recent.
func FromPlant(carePlanRaw, journalsRaw any) (CarePlan, []JournalEntry) {
	return FromPlantIn(carePlanRaw, journalsRaw, time.Local)
}

// FromPlantIn is FromPlant with timestamps lacking a zone read in loc.
func FromPlantIn(carePlanRaw, journalsRaw any, loc *time.Location) (CarePlan, []JournalEntry) {
	plan := ParseIn(carePlanRaw, loc)
	entries := ParseJournalIn(journalsRaw, loc)
	for k, t := range plan {
		if at, ok := LastPerformed(entries, k); ok && at.After(t.LastPerformedAt) {
			t.LastPerformedAt = at
			plan[k] = t
		}
	}
	return plan, entries
}

// sameDay compares calendar dates in day's location.
func sameDay(at, day time.Time) bool {
	y1, m1, d1 := at.In(day.Location()).Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
