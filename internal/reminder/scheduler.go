package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"plantcare/internal/careplan"
	"plantcare/internal/garden"
	"plantcare/internal/localnotify"
	logx "plantcare/pkg/logx"
)

// PlantSource is the read side of the garden.
type PlantSource interface {
	FetchPlantsForUser(ctx context.Context, userID string) ([]garden.Plant, error)
}

type Options struct {
	Plants      PlantSource
	Store       localnotify.Store
	Permissions localnotify.Permissions // nil grants
	Logger      logx.Logger
	Now         func() time.Time
	Location    *time.Location // nil uses time.Local
}

// Scheduler programs care reminders into a notification store. Runs are
// serialized; the store is read, filtered and rewritten by one run at a time.
type Scheduler struct {
	plants PlantSource
	store  localnotify.Store
	perms  localnotify.Permissions
	log    logx.Logger
	now    func() time.Time

	mu  sync.Mutex
	loc *time.Location
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		plants: opts.Plants,
		store:  opts.Store,
		perms:  opts.Permissions,
		log:    opts.Logger,
		now:    opts.Now,
		loc:    opts.Location,
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "reminder"))
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

// SetLocation changes the zone wall-clock times are interpreted in.
func (s *Scheduler) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

// ScheduledGroup is one notification submitted by a run.
type ScheduledGroup struct {
	ID       string
	Key      string
	At       time.Time
	PlantIDs []string
}

// Result summarizes a scheduler run.
type Result struct {
	// Skipped is set when permission was denied and nothing was touched.
	Skipped   bool
	Cancelled int
	Scheduled []ScheduledGroup
	// Failures holds one *SchedulingError per group that could not be submitted.
	Failures []error
}

// Err joins the per-group failures; nil when every group was submitted.
func (r Result) Err() error { return errors.Join(r.Failures...) }

// GroupKeys lists the keys of the scheduled groups in submission order.
func (r Result) GroupKeys() []string {
	out := make([]string, 0, len(r.Scheduled))
	for _, g := range r.Scheduled {
		out = append(out, g.Key)
	}
	return out
}

// Planned is a group with its next trigger.
type Planned struct {
	Group Group
	At    time.Time
}

// Plan groups the user's plants and computes each group's next trigger
// without touching the notification store.
func (s *Scheduler) Plan(ctx context.Context, userID string) ([]Planned, error) {
	plants, err := s.plants.FetchPlantsForUser(ctx, userID)
	if err != nil {
		return nil, &SchedulingError{Kind: KindFetch, Op: userID, Err: err}
	}
	s.mu.Lock()
	now := s.now().In(s.loc)
	s.mu.Unlock()
	return plan(GroupPlants(plants), now), nil
}

func plan(groups []Group, now time.Time) []Planned {
	out := make([]Planned, 0, len(groups))
	for _, g := range groups {
		rep := g.Representative()
		out = append(out, Planned{
			Group: g,
			At:    careplan.ComputeNextTrigger(now, rep.Time, rep.Repeat, rep.Custom),
		})
	}
	return out
}

// Resync replaces every reminder this package owns with a fresh set built
// from the user's garden.
//
// A denied permission skips the run. A failed fetch leaves the existing
// reminders in place. Groups that fail to submit are reported in
// Result.Failures and do not stop the remaining groups.
func (s *Scheduler) Resync(ctx context.Context, userID string) (Result, error) {
	return s.resync(ctx, userID, false)
}

// Refresh is Resync for periodic runs: a group whose pending reminder is
// still in the future keeps that trigger instead of moving back to the
// earliest occurrence after now. Groups that changed, or have nothing
// pending, are computed as Resync does.
func (s *Scheduler) Refresh(ctx context.Context, userID string) (Result, error) {
	return s.resync(ctx, userID, true)
}

func (s *Scheduler) resync(ctx context.Context, userID string, keepPending bool) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	if err := s.checkPermission(ctx); err != nil {
		res.Skipped = IsKind(err, KindPermission) && errors.Is(err, localnotify.ErrPermissionDenied)
		s.log.Debug("resync skipped", logx.Err(err))
		return res, err
	}

	plants, err := s.plants.FetchPlantsForUser(ctx, userID)
	if err != nil {
		s.log.Warn("resync fetch failed; keeping existing reminders", logx.String("user", userID), logx.Err(err))
		return res, &SchedulingError{Kind: KindFetch, Op: userID, Err: err}
	}

	now := s.now().In(s.loc)
	var pending map[string]time.Time
	if keepPending {
		if pending, err = s.pendingTriggers(ctx, now); err != nil {
			return res, err
		}
	}

	n, err := s.cancelOwned(ctx)
	res.Cancelled = n
	if err != nil {
		return res, err
	}

	for _, p := range plan(GroupPlants(plants), now) {
		if at, ok := pending[p.Group.Key.String()]; ok && at.After(p.At) {
			p.At = at
		}
		s.submit(ctx, &res, p.Group, p.At)
	}

	s.log.Info("resync done",
		logx.String("user", userID),
		logx.Bool("refresh", keepPending),
		logx.Int("plants", len(plants)),
		logx.Int("cancelled", res.Cancelled),
		logx.Int("scheduled", len(res.Scheduled)),
		logx.Int("failed", len(res.Failures)),
	)
	return res, nil
}

// CancelTask removes plantID's task from every reminder covering it. When
// other plants share the reminder it is rescheduled for them at the same
// trigger, with title and body rebuilt for the remaining members.
func (s *Scheduler) CancelTask(ctx context.Context, plantID string, task careplan.TaskKey) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	list, err := s.store.ListScheduled(ctx)
	if err != nil {
		return res, &SchedulingError{Kind: KindList, Err: err}
	}

	var regroup []localnotify.Scheduled
	for _, n := range list {
		if !Matches(n.Payload, plantID, task) {
			continue
		}
		if err := s.store.Cancel(ctx, n.ID); err != nil && !errors.Is(err, localnotify.ErrNotFound) {
			return res, &SchedulingError{Kind: KindCancel, Op: n.ID, Err: err}
		}
		res.Cancelled++
		regroup = append(regroup, n)
	}
	if len(regroup) == 0 {
		return res, nil
	}

	permErr := s.checkPermission(ctx)
	now := s.now().In(s.loc)
	for _, n := range regroup {
		ids, names := without(PlantIDs(n.Payload), PlantNames(n.Payload), plantID)
		if len(ids) == 0 {
			continue
		}
		if permErr != nil {
			s.log.Debug("regroup skipped", logx.String("group", n.Payload[KeyGroup]), logx.Err(permErr))
			continue
		}
		at := n.At
		if floor := now.Add(careplan.MinLead); at.Before(floor) {
			at = floor
		}
		payload := n.Payload.Clone()
		payload[KeyPlantIDs] = encodeList(ids)
		payload[KeyPlantNames] = encodeList(names)

		key := payload[KeyGroup]
		id, err := s.store.ScheduleAt(ctx, Title(names), Body(task, len(ids)), at, payload)
		if err != nil {
			s.recordFailure(&res, key, err)
			continue
		}
		res.Scheduled = append(res.Scheduled, ScheduledGroup{ID: id, Key: key, At: at, PlantIDs: ids})
	}

	s.log.Info("task reminders cancelled",
		logx.String("plant", plantID),
		logx.String("task", string(task)),
		logx.Int("cancelled", res.Cancelled),
		logx.Int("regrouped", len(res.Scheduled)),
	)
	return res, nil
}

// Clear cancels every reminder this package owns, leaving other
// notifications alone. Used when the user signs out.
func (s *Scheduler) Clear(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.cancelOwned(ctx)
	return Result{Cancelled: n}, err
}

func (s *Scheduler) checkPermission(ctx context.Context) error {
	if s.perms == nil {
		return nil
	}
	ok, err := s.perms.Granted(ctx)
	if err != nil {
		return &SchedulingError{Kind: KindPermission, Op: "check", Err: err}
	}
	if !ok {
		return &SchedulingError{Kind: KindPermission, Op: "check", Err: localnotify.ErrPermissionDenied}
	}
	return nil
}

// pendingTriggers maps each owned group to its latest trigger after now.
func (s *Scheduler) pendingTriggers(ctx context.Context, now time.Time) (map[string]time.Time, error) {
	list, err := s.store.ListScheduled(ctx)
	if err != nil {
		return nil, &SchedulingError{Kind: KindList, Err: err}
	}
	out := map[string]time.Time{}
	for _, n := range list {
		key := n.Payload[KeyGroup]
		if !Owned(n.Payload) || key == "" || !n.At.After(now) {
			continue
		}
		if prev, ok := out[key]; !ok || n.At.After(prev) {
			out[key] = n.At
		}
	}
	return out, nil
}

// cancelOwned cancels every notification carrying the careplan marker.
func (s *Scheduler) cancelOwned(ctx context.Context) (int, error) {
	list, err := s.store.ListScheduled(ctx)
	if err != nil {
		return 0, &SchedulingError{Kind: KindList, Err: err}
	}
	n := 0
	for _, e := range list {
		if !Owned(e.Payload) {
			continue
		}
		if err := s.store.Cancel(ctx, e.ID); err != nil && !errors.Is(err, localnotify.ErrNotFound) {
			return n, &SchedulingError{Kind: KindCancel, Op: e.ID, Err: err}
		}
		n++
	}
	return n, nil
}

func (s *Scheduler) submit(ctx context.Context, res *Result, g Group, at time.Time) {
	names := make([]string, 0, len(g.Members))
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		names = append(names, m.PlantName)
		ids = append(ids, m.PlantID)
	}
	key := g.Key.String()
	id, err := s.store.ScheduleAt(ctx, Title(names), Body(g.Key.Task, len(g.Members)), at, buildPayload(g))
	if err != nil {
		s.recordFailure(res, key, err)
		return
	}
	res.Scheduled = append(res.Scheduled, ScheduledGroup{ID: id, Key: key, At: at, PlantIDs: ids})
}

func (s *Scheduler) recordFailure(res *Result, key string, err error) {
	s.log.Warn("reminder group not scheduled", logx.String("group", key), logx.Err(err))
	res.Failures = append(res.Failures, &SchedulingError{Kind: KindSubmit, Op: key, Err: err})
}

// without drops plantID from ids and the matching entry from names.
func without(ids, names []string, plantID string) ([]string, []string) {
	keptIDs := make([]string, 0, len(ids))
	keptNames := make([]string, 0, len(names))
	for i, id := range ids {
		if id == plantID {
			continue
		}
		keptIDs = append(keptIDs, id)
		if i < len(names) {
			keptNames = append(keptNames, names[i])
		} else {
			keptNames = append(keptNames, "")
		}
	}
	return keptIDs, keptNames
}
