package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"plantcare/internal/careplan"
	"plantcare/internal/eventbus"
	"plantcare/internal/garden"
	"plantcare/internal/localnotify"
	"plantcare/internal/reminder"
	"plantcare/internal/trigger"
	logx "plantcare/pkg/logx"
)

// ReminderWarning is shown when a primary action succeeded but its reminders
// could not be programmed.
const ReminderWarning = "reminders not set"

// Login signs userID in and programs their reminders.
func (a *App) Login(ctx context.Context, userID string) (reminder.Result, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return reminder.Result{}, garden.ErrNoUser
	}
	a.mu.Lock()
	a.state.UserID = userID
	a.mu.Unlock()
	if err := a.states.saveUser(ctx, userID); err != nil {
		return reminder.Result{}, fmt.Errorf("save session: %w", err)
	}
	a.log.Info("signed in", logx.String("user", userID))
	return a.resync(ctx, "login")
}

// Logout signs the user out and cancels their care reminders.
func (a *App) Logout(ctx context.Context) (reminder.Result, error) {
	a.mu.Lock()
	a.state.UserID = ""
	a.mu.Unlock()
	if err := a.states.saveUser(ctx, ""); err != nil {
		return reminder.Result{}, fmt.Errorf("save session: %w", err)
	}
	a.log.Info("signed out")
	return a.sched.Clear(ctx)
}

// Foreground is the app coming back to the foreground: a full resync.
func (a *App) Foreground(ctx context.Context) (reminder.Result, error) {
	return a.resync(ctx, "foreground")
}

// periodic reports whether a resync reason comes from the daemon itself
// rather than a user action. Those keep pending future triggers.
func periodic(reason string) bool {
	switch reason {
	case "start", "schedule", "fired", "failed", "deduped":
		return true
	}
	return false
}

func (a *App) resync(ctx context.Context, reason string) (reminder.Result, error) {
	userID := a.State().UserID
	if userID == "" {
		return reminder.Result{}, ErrNoSession
	}
	var (
		res reminder.Result
		err error
	)
	if periodic(reason) {
		res, err = a.sched.Refresh(ctx, userID)
	} else {
		res, err = a.sched.Resync(ctx, userID)
	}

	at := a.now()
	sum := summarize(reason, res, err)
	a.mu.Lock()
	a.state.LastResyncAt = at
	a.state.LastResult = sum
	a.mu.Unlock()
	if perr := a.states.saveResync(ctx, at, sum); perr != nil {
		a.log.Warn("save resync state", logx.Err(perr))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeResyncDone, Data: sum})
	return res, err
}

// AddPlantResult is the outcome of AddPlant. ReminderWarning is set when the
// plant was stored but its reminders were not programmed.
type AddPlantResult struct {
	Plant           garden.Plant
	Reminders       reminder.Result
	ReminderWarning string
}

// AddPlant stores a plant for the signed-in user and resyncs. Scheduling
// problems never fail the add.
func (a *App) AddPlant(ctx context.Context, np garden.NewPlant) (AddPlantResult, error) {
	if np.UserID == "" {
		np.UserID = a.State().UserID
	}
	p, err := a.garden.AddPlant(ctx, np)
	if err != nil {
		return AddPlantResult{}, err
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypePlantAdded, Data: p.ID})

	out := AddPlantResult{Plant: p}
	res, err := a.resync(ctx, "plant.added")
	out.Reminders = res
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		out.ReminderWarning = ReminderWarning
		a.log.Warn("plant added without reminders", logx.String("plant", p.ID), logx.Err(err))
	}
	return out, nil
}

// RemovePlant deletes a plant and drops it from the reminders.
func (a *App) RemovePlant(ctx context.Context, plantID string) (reminder.Result, error) {
	if err := a.garden.RemovePlant(ctx, plantID); err != nil {
		return reminder.Result{}, err
	}
	return a.resync(ctx, "plant.removed")
}

// UpdateTaskResult is the outcome of UpdateTask.
type UpdateTaskResult struct {
	Task            careplan.CareTask
	Reminders       reminder.Result
	ReminderWarning string
}

// UpdateTask edits one care task and resyncs, since time or repeat changes
// move the task to another group.
func (a *App) UpdateTask(ctx context.Context, plantID string, key careplan.TaskKey, edit func(*careplan.CareTask)) (UpdateTaskResult, error) {
	t, err := a.garden.UpdateTask(ctx, plantID, key, edit)
	if err != nil {
		return UpdateTaskResult{}, err
	}
	out := UpdateTaskResult{Task: t}
	res, err := a.resync(ctx, "task.updated")
	out.Reminders = res
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		out.ReminderWarning = ReminderWarning
		a.log.Warn("task updated without reminders", logx.String("plant", plantID), logx.String("task", string(key)), logx.Err(err))
	}
	return out, nil
}

// SetTaskNotifications turns one task's reminder on or off. Turning it off
// only touches the reminders covering that task; turning it on resyncs.
func (a *App) SetTaskNotifications(ctx context.Context, plantID string, key careplan.TaskKey, enabled bool) (reminder.Result, error) {
	_, err := a.garden.UpdateTask(ctx, plantID, key, func(t *careplan.CareTask) {
		t.NotificationEnabled = enabled
	})
	if err != nil {
		return reminder.Result{}, err
	}
	if !enabled {
		return a.sched.CancelTask(ctx, plantID, key)
	}
	return a.resync(ctx, "task.enabled")
}

// LogCare records a task as done or skipped now.
func (a *App) LogCare(ctx context.Context, plantID string, key careplan.TaskKey, status careplan.Status) (careplan.JournalEntry, error) {
	e, err := a.garden.AppendJournal(ctx, plantID, careplan.JournalEntry{
		Task:   key,
		Status: status,
		At:     a.now().In(a.location()),
	})
	if err != nil {
		return careplan.JournalEntry{}, err
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeCareLogged, Data: e})
	return e, nil
}

// UndoCare removes the journal entries of key on day (today when zero).
func (a *App) UndoCare(ctx context.Context, plantID string, key careplan.TaskKey, day time.Time) (int, error) {
	if day.IsZero() {
		day = a.now()
	}
	return a.garden.RemoveJournalForDay(ctx, plantID, key, day.In(a.location()))
}

// DueItem is one task due on a given day. Status is empty until the task is
// logged that day.
type DueItem struct {
	PlantID   string
	PlantName string
	Task      careplan.TaskKey
	Status    careplan.Status
}

// DueToday lists the signed-in user's tasks due on today's calendar day
// (now when zero), in plant order and then task order.
func (a *App) DueToday(ctx context.Context, today time.Time) ([]DueItem, error) {
	userID := a.State().UserID
	if userID == "" {
		return nil, ErrNoSession
	}
	if today.IsZero() {
		today = a.now()
	}
	today = today.In(a.location())

	plants, err := a.garden.FetchPlantsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []DueItem
	for _, p := range plants {
		plan, entries := careplan.FromPlantIn(p.CarePlan, p.Journals, today.Location())
		for _, t := range plan.Tasks() {
			if !careplan.IsDueToday(t, today) {
				continue
			}
			st, _ := careplan.DayStatus(entries, t.Key, today)
			out = append(out, DueItem{PlantID: p.ID, PlantName: p.Name, Task: t.Key, Status: st})
		}
	}
	return out, nil
}

// Plan previews the reminders a resync would program, without writing.
func (a *App) Plan(ctx context.Context) ([]reminder.Planned, error) {
	userID := a.State().UserID
	if userID == "" {
		return nil, ErrNoSession
	}
	return a.sched.Plan(ctx, userID)
}

// Scheduled lists every pending notification.
func (a *App) Scheduled(ctx context.Context) ([]localnotify.Scheduled, error) {
	return a.notes.ListScheduled(ctx)
}

// Plants lists the signed-in user's plants.
func (a *App) Plants(ctx context.Context) ([]garden.Plant, error) {
	userID := a.State().UserID
	if userID == "" {
		return nil, ErrNoSession
	}
	return a.garden.FetchPlantsForUser(ctx, userID)
}

// NextResyncs previews the next n periodic resync times.
func (a *App) NextResyncs(n int) ([]time.Time, error) {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()
	return trigger.Preview(mapTriggerConfig(cfg).Schedule, a.location(), a.now(), n)
}
