package garden

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plantcare/internal/careplan"
	logx "plantcare/pkg/logx"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := OpenFile(filepath.Join(dir, "garden.json"), logx.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	ys, err := OpenFile(filepath.Join(dir, "garden.yaml"), logx.Nop())
	if err != nil {
		t.Fatalf("OpenFile yaml: %v", err)
	}
	ss, err := OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })
	return map[string]Store{"file": fs, "yaml": ys, "sqlite": ss}
}

func TestGardenCareOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for name, st := range stores(t) {
		name, st := name, st
		t.Run(name, func(t *testing.T) {
			g := New(st, WithClock(fixedClock(now)))

			if _, err := g.AddPlant(ctx, NewPlant{UserID: "u1"}); !errors.Is(err, ErrNoName) {
				t.Fatalf("AddPlant without name err = %v", err)
			}
			fern, err := g.AddPlant(ctx, NewPlant{UserID: "u1", Name: " Fern "})
			if err != nil {
				t.Fatalf("AddPlant: %v", err)
			}
			if fern.Name != "Fern" || fern.ID == "" {
				t.Fatalf("plant = %+v", fern)
			}
			if _, err := g.AddPlant(ctx, NewPlant{UserID: "u2", Name: "Cactus"}); err != nil {
				t.Fatalf("AddPlant: %v", err)
			}

			plants, err := g.FetchPlantsForUser(ctx, "u1")
			if err != nil || len(plants) != 1 || plants[0].ID != fern.ID {
				t.Fatalf("FetchPlantsForUser = %+v err=%v", plants, err)
			}
			plan := careplan.Parse(plants[0].CarePlan)
			if !plan[careplan.Watering].Schedulable() {
				t.Fatalf("default plan should schedule watering: %+v", plan)
			}

			task, err := g.UpdateTask(ctx, fern.ID, careplan.Watering, func(ct *careplan.CareTask) {
				ct.Repeat = careplan.RepeatEveryDay
				ct.Time = careplan.TimeOfDay{Hour: 7, Minute: 30}
			})
			if err != nil || task.Repeat != careplan.RepeatEveryDay {
				t.Fatalf("UpdateTask = %+v err=%v", task, err)
			}
			if _, err := g.UpdateTask(ctx, fern.ID, careplan.Pruning, func(*careplan.CareTask) {}); !errors.Is(err, ErrNoTask) {
				t.Fatalf("UpdateTask(missing) err = %v", err)
			}

			if _, err := g.AppendJournal(ctx, fern.ID, careplan.JournalEntry{Task: careplan.Watering, Status: careplan.StatusDone}); err != nil {
				t.Fatalf("AppendJournal: %v", err)
			}
			if _, err := g.AppendJournal(ctx, fern.ID, careplan.JournalEntry{Task: careplan.Watering, Status: "maybe"}); !errors.Is(err, ErrBadStatus) {
				t.Fatalf("AppendJournal(bad status) err = %v", err)
			}

			p, err := st.GetPlant(ctx, fern.ID)
			if err != nil {
				t.Fatalf("GetPlant: %v", err)
			}
			plan, entries := careplan.FromPlant(p.CarePlan, p.Journals)
			if len(entries) != 1 || !plan[careplan.Watering].LastPerformedAt.Equal(now) {
				t.Fatalf("journal not applied: %+v %+v", entries, plan[careplan.Watering])
			}
			if plan[careplan.Watering].Time != (careplan.TimeOfDay{Hour: 7, Minute: 30}) {
				t.Fatalf("time edit lost: %+v", plan[careplan.Watering])
			}

			n, err := g.RemoveJournalForDay(ctx, fern.ID, careplan.Watering, now)
			if err != nil || n != 1 {
				t.Fatalf("RemoveJournalForDay = %d err=%v", n, err)
			}
			if err := g.RemovePlant(ctx, fern.ID); err != nil {
				t.Fatalf("RemovePlant: %v", err)
			}
			if _, err := st.GetPlant(ctx, fern.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetPlant after remove err = %v", err)
			}
		})
	}
}

func TestGardenReadsZonelessTimestampsInLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := time.FixedZone("WIB", 7*3600)
	now := time.Date(2024, 3, 2, 8, 0, 0, 0, loc)

	for name, st := range stores(t) {
		name, st := name, st
		t.Run(name, func(t *testing.T) {
			g := New(st, WithClock(fixedClock(now)), WithLocation(func() *time.Location { return loc }))
			p := Plant{
				ID:       "p1",
				UserID:   "u1",
				Name:     "Fern",
				CarePlan: `{"Watering":{"Repeat":"EveryDay","LastPerformedAt":"2024-03-01 23:30:00"}}`,
				Journals: `[{"taskKey":"Watering","timestamp":"2024-03-01 23:30:00"}]`,
			}
			if err := st.InsertPlant(ctx, p); err != nil {
				t.Fatalf("InsertPlant: %v", err)
			}

			task, err := g.UpdateTask(ctx, "p1", careplan.Watering, func(ct *careplan.CareTask) {
				ct.Time = careplan.TimeOfDay{Hour: 7}
			})
			if err != nil {
				t.Fatalf("UpdateTask: %v", err)
			}
			if want := time.Date(2024, 3, 1, 23, 30, 0, 0, loc); !task.LastPerformedAt.Equal(want) {
				t.Fatalf("LastPerformedAt = %v, want %v", task.LastPerformedAt, want)
			}

			// 23:30 local is still March 1; read as UTC it would be March 2.
			n, err := g.RemoveJournalForDay(ctx, "p1", careplan.Watering, time.Date(2024, 3, 1, 12, 0, 0, 0, loc))
			if err != nil || n != 1 {
				t.Fatalf("RemoveJournalForDay = %d err=%v", n, err)
			}
		})
	}
}

func TestFileStoreReadsSeedDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "garden.yaml")
	seed := `plants:
  - id: p1
    user_id: u1
    name: Monstera
    careplan:
      watering:
        notificationEnabled: true
        repeat: EveryDay
        time: "08:15"
    journals: '[{"taskKey":"Watering","timestamp":"2024-02-29T08:00:00Z","status":"Done"}]'
  - id: p2
    user_id: u1
    name: Broken
    careplan: "{not json"
`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	st, err := OpenFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	plants, err := st.FetchPlantsForUser(ctx, "u1")
	if err != nil || len(plants) != 2 {
		t.Fatalf("plants = %+v err=%v", plants, err)
	}
	byID := map[string]Plant{}
	for _, p := range plants {
		byID[p.ID] = p
	}
	plan := careplan.Parse(byID["p1"].CarePlan)
	w, ok := plan[careplan.Watering]
	if !ok || w.Repeat != careplan.RepeatEveryDay || w.Time != (careplan.TimeOfDay{Hour: 8, Minute: 15}) {
		t.Fatalf("watering = %+v ok=%v", w, ok)
	}
	if got := careplan.Parse(byID["p2"].CarePlan); len(got) != 0 {
		t.Fatalf("malformed plan should be empty: %+v", got)
	}

	// A write keeps the document readable YAML.
	if err := st.UpdatePlant(ctx, Plant{ID: "p2", Name: "Renamed", CarePlan: byID["p2"].CarePlan}); err != nil {
		t.Fatalf("UpdatePlant: %v", err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "name: Renamed") {
		t.Fatalf("yaml not rewritten:\n%s", b)
	}
	again, err := OpenFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	p2, err := again.GetPlant(ctx, "p2")
	if err != nil || p2.UserID != "u1" || p2.CarePlan != "{not json" {
		t.Fatalf("p2 after reopen = %+v err=%v", p2, err)
	}
}

func TestOpenValidatesConfig(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected error without path")
	}
	if _, err := Open(Config{Driver: "mongo", Path: "x"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
