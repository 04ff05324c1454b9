package garden

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"plantcare/internal/careplan"
	logx "plantcare/pkg/logx"
)

// Garden applies care operations to plants held in a Store. Every operation
// is a read-modify-write of one plant, serialized per Garden.
type Garden struct {
	store Store
	log   logx.Logger
	now   func() time.Time
	loc   func() *time.Location

	mu sync.Mutex
}

type Option func(*Garden)

func WithLogger(l logx.Logger) Option      { return func(g *Garden) { g.log = l } }
func WithClock(now func() time.Time) Option { return func(g *Garden) { g.now = now } }

// WithLocation sets the zone stored timestamps without an offset are read in.
func WithLocation(loc func() *time.Location) Option { return func(g *Garden) { g.loc = loc } }

func New(store Store, opts ...Option) *Garden {
	g := &Garden{store: store, log: logx.Nop(), now: time.Now, loc: func() *time.Location { return time.Local }}
	for _, o := range opts {
		if o != nil {
			o(g)
		}
	}
	g.log = g.log.With(logx.String("comp", "garden"))
	return g
}

// FetchPlantsForUser lists the user's plants.
func (g *Garden) FetchPlantsForUser(ctx context.Context, userID string) ([]Plant, error) {
	return g.store.FetchPlantsForUser(ctx, userID)
}

// NewPlant describes a plant to add. A nil CarePlan gets DefaultCarePlan.
type NewPlant struct {
	UserID   string
	Name     string
	CarePlan careplan.CarePlan
}

func (g *Garden) AddPlant(ctx context.Context, np NewPlant) (Plant, error) {
	if strings.TrimSpace(np.UserID) == "" {
		return Plant{}, ErrNoUser
	}
	name := strings.TrimSpace(np.Name)
	if name == "" {
		return Plant{}, ErrNoName
	}
	plan := np.CarePlan
	if plan == nil {
		plan = DefaultCarePlan()
	}
	raw, err := careplan.Encode(plan)
	if err != nil {
		return Plant{}, fmt.Errorf("encode care plan: %w", err)
	}
	now := g.now().UTC()
	p := Plant{
		ID:        uuid.NewString(),
		UserID:    np.UserID,
		Name:      name,
		CarePlan:  string(raw),
		Journals:  "[]",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.InsertPlant(ctx, p); err != nil {
		return Plant{}, err
	}
	g.log.Info("plant added", logx.String("plant", p.ID), logx.String("name", p.Name))
	return p, nil
}

func (g *Garden) RemovePlant(ctx context.Context, plantID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.DeletePlant(ctx, plantID)
}

// UpdateTask edits one task of a plant's care plan and returns the result.
// The task must already be part of the plan.
func (g *Garden) UpdateTask(ctx context.Context, plantID string, key careplan.TaskKey, edit func(*careplan.CareTask)) (careplan.CareTask, error) {
	var out careplan.CareTask
	err := g.mutate(ctx, plantID, func(p *Plant) error {
		plan := careplan.ParseIn(p.CarePlan, g.loc())
		t, ok := plan[key]
		if !ok {
			return fmt.Errorf("%s: %w", key, ErrNoTask)
		}
		edit(&t)
		t.Key = key
		plan[key] = t
		raw, err := careplan.Encode(plan)
		if err != nil {
			return err
		}
		p.CarePlan = string(raw)
		out = t
		return nil
	})
	return out, err
}

// AppendJournal logs a task as done or skipped. A zero At means now and an
// empty ID gets a fresh one.
func (g *Garden) AppendJournal(ctx context.Context, plantID string, e careplan.JournalEntry) (careplan.JournalEntry, error) {
	if e.Status != careplan.StatusDone && e.Status != careplan.StatusSkipped {
		return careplan.JournalEntry{}, ErrBadStatus
	}
	if e.At.IsZero() {
		e.At = g.now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := g.mutate(ctx, plantID, func(p *Plant) error {
		entries := append(careplan.ParseJournalIn(p.Journals, g.loc()), e)
		raw, err := careplan.EncodeJournal(entries)
		if err != nil {
			return err
		}
		p.Journals = string(raw)
		return nil
	})
	if err != nil {
		return careplan.JournalEntry{}, err
	}
	return e, nil
}

// RemoveJournalForDay drops the entries of key on day's calendar date and
// reports how many were removed.
func (g *Garden) RemoveJournalForDay(ctx context.Context, plantID string, key careplan.TaskKey, day time.Time) (int, error) {
	removed := 0
	err := g.mutate(ctx, plantID, func(p *Plant) error {
		entries, n := careplan.RemoveForDay(careplan.ParseJournalIn(p.Journals, g.loc()), key, day)
		if n == 0 {
			return nil
		}
		raw, err := careplan.EncodeJournal(entries)
		if err != nil {
			return err
		}
		p.Journals = string(raw)
		removed = n
		return nil
	})
	return removed, err
}

func (g *Garden) mutate(ctx context.Context, plantID string, fn func(*Plant) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.store.GetPlant(ctx, plantID)
	if err != nil {
		return err
	}
	before := p
	if err := fn(&p); err != nil {
		return err
	}
	if p == before {
		return nil
	}
	p.UpdatedAt = g.now().UTC()
	return g.store.UpdatePlant(ctx, p)
}

// DefaultCarePlan is the plan given to plants added without one.
func DefaultCarePlan() careplan.CarePlan {
	at := careplan.DefaultTimeOfDay
	return careplan.CarePlan{
		careplan.Watering: {
			Key: careplan.Watering, NotificationEnabled: true,
			Repeat: careplan.RepeatEveryWeek, Time: at,
		},
		careplan.Fertilize: {
			Key: careplan.Fertilize, NotificationEnabled: true,
			Repeat: careplan.RepeatCustom, Custom: &careplan.CustomRepeat{Value: 1, Unit: careplan.UnitMonth}, Time: at,
		},
		careplan.Soilcheck: {
			Key: careplan.Soilcheck, NotificationEnabled: false,
			Repeat: careplan.RepeatEveryWeek, Time: at,
		},
	}
}
