package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"plantcare/internal/config"
	"plantcare/internal/delivery"
	"plantcare/internal/eventbus"
	"plantcare/internal/garden"
	"plantcare/internal/localnotify"
	"plantcare/internal/observability/pprof"
	"plantcare/internal/reminder"
	"plantcare/internal/runtime/supervisor"
	"plantcare/internal/storage"
	"plantcare/internal/trigger"
	logx "plantcare/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	now  func() time.Time

	kv     storage.KV
	states stateStore
	gstore garden.Store
	garden *garden.Garden
	notes  *localnotify.KVStore
	gate   *localnotify.Gate
	sched  *reminder.Scheduler
	deliv  *delivery.Service
	trig   *trigger.Service
	pprof  *pprof.Service

	mu    sync.Mutex
	cfg   *config.Config
	state State
	loc   *time.Location
}

type options struct {
	log    logx.Logger
	now    func() time.Time
	sink   delivery.Sink
	garden garden.Store
}

type Option func(*options)

// WithLogger replaces the configured logging service.
func WithLogger(l logx.Logger) Option { return func(o *options) { o.log = l } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithSink replaces the configured delivery sink.
func WithSink(s delivery.Sink) Option { return func(o *options) { o.sink = s } }

// WithGardenStore replaces the configured garden store. The app closes it on Stop.
func WithGardenStore(s garden.Store) Option { return func(o *options) { o.garden = s } }

// NewApp loads cfgPath and builds the app. Config changes are watched once
// the app is started.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

// New builds the app from cfg without a config watcher.
func New(cfg *config.Config, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	a := &App{cfg: cfg, bus: eventbus.New(), now: o.now}
	log := o.log
	if log.IsZero() {
		a.logs, log = logx.New(mapLoggingConfig(cfg))
	}
	a.log = log.With(logx.String("comp", "app"))

	var closers []func() error
	if a.logs != nil {
		closers = append(closers, a.logs.Close)
	}
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	a.loc, err = trigger.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.kv, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	closers = append(closers, a.kv.Close)
	a.states = stateStore{kv: a.kv}

	a.gstore = o.garden
	if a.gstore == nil {
		gc, err := mapGardenConfig(cfg)
		if err != nil {
			return nil, err
		}
		if a.gstore, err = garden.Open(gc, log); err != nil {
			return nil, err
		}
	}
	closers = append(closers, a.gstore.Close)
	a.garden = garden.New(a.gstore, garden.WithLogger(log), garden.WithClock(o.now), garden.WithLocation(a.location))

	a.notes = localnotify.NewKVStore(a.kv, localnotify.WithLogger(log), localnotify.WithClock(o.now))
	a.gate = localnotify.NewGate(localnotify.ParsePermission(cfg.Notifications.Permission))
	a.sched = reminder.New(reminder.Options{
		Plants:      a.garden,
		Store:       a.notes,
		Permissions: a.gate,
		Logger:      log,
		Now:         o.now,
		Location:    a.loc,
	})

	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	sink := o.sink
	if sink == nil {
		if sink, err = buildSink(cfg, log.With(logx.String("comp", "sink"))); err != nil {
			return nil, err
		}
	}
	dopts := []delivery.Option{delivery.WithClock(o.now)}
	if dc.PersistDedup {
		dopts = append(dopts, delivery.WithDedupStore(a.kv))
	}
	a.deliv = delivery.New(dc, a.notes, sink, log, a.bus, dopts...)

	if a.trig, err = trigger.New(mapTriggerConfig(cfg), a.onTrigger, log); err != nil {
		return nil, err
	}
	a.pprof = pprof.New(mapPprofConfig(cfg), log)

	st, err := a.states.load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st.UserID == "" {
		st.UserID = strings.TrimSpace(cfg.Session.UserID)
	}
	a.state = st
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs delivery, lifecycle triggers, pprof and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	if a.deliv.Enabled() {
		a.deliv.Start(c)
	}
	a.pprof.Start(c)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.handle", func(c context.Context) {
		defer unsub()
		a.eventLoop(c, events)
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(a.validateConfig)
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-c.Done():
					return
				case newCfg, ok := <-sub:
					if !ok {
						return
					}
					// Coalesce bursts: keep only the latest config.
					for drained := false; !drained; {
						select {
						case newer := <-sub:
							if newer != nil {
								newCfg = newer
							}
						default:
							drained = true
						}
					}
					a.applyConfig(c, newCfg)
				}
			}
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	// Started last so a start-up resync sees delivery and the event loop running.
	a.trig.Start(c)

	st := a.State()
	a.log.Info("app started",
		logx.Bool("signed_in", st.UserID != ""),
		logx.String("tz", a.location().String()),
		logx.Bool("delivery", a.deliv.Enabled()),
	)
	return nil
}

// eventLoop answers fired reminders with a resync so each group moves on to
// its next occurrence. Failed and deduplicated deliveries also consumed their
// notification, so they rearm the same way.
func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", string(e.Type)), logx.Time("time", e.Time))
			reason, rearm := rearmReason(e.Type)
			if !rearm {
				continue
			}
			// Several groups often fire in the same poll; one resync covers them.
			for drained := false; !drained; {
				select {
				case more, ok := <-events:
					if !ok {
						drained = true
						break
					}
					a.log.Debug("event", logx.String("type", string(more.Type)), logx.Time("time", more.Time))
					if r, ok := rearmReason(more.Type); ok && r == "fired" {
						reason = r
					}
				default:
					drained = true
				}
			}
			a.onTrigger(ctx, reason)
		}
	}
}

// rearmReason maps delivery outcomes to the resync reason they cause.
func rearmReason(t eventbus.Type) (string, bool) {
	switch t {
	case eventbus.TypeReminderFired:
		return "fired", true
	case delivery.TypeReminderFailed:
		return "failed", true
	case delivery.TypeReminderDeduped:
		return "deduped", true
	}
	return "", false
}

func (a *App) onTrigger(ctx context.Context, reason string) {
	_, err := a.resync(ctx, reason)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSession):
		a.log.Debug("resync skipped: no signed-in user", logx.String("reason", reason))
	case reminder.IsKind(err, reminder.KindPermission):
		// Logged by the scheduler.
	default:
		a.log.Warn("resync failed", logx.String("reason", reason), logx.Err(err))
	}
}

// validateConfig runs before a reloaded config is committed.
func (a *App) validateConfig(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := trigger.ParseSchedule(mapTriggerConfig(cfg).Schedule); err != nil {
		return fmt.Errorf("scheduler.resync: %w", err)
	}
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	if _, err := mapGardenConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) applyConfig(ctx context.Context, newCfg *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(prev, newCfg)
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if a.logs != nil {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}
	for _, s := range []string{"storage", "garden", "session"} {
		if changed[s] {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.gate.Set(localnotify.ParsePermission(newCfg.Notifications.Permission))
	if loc, err := trigger.LoadLocation(newCfg.Scheduler.Timezone); err == nil {
		a.mu.Lock()
		a.loc = loc
		a.mu.Unlock()
		a.sched.SetLocation(loc)
	}
	if err := a.trig.Apply(mapTriggerConfig(newCfg)); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	}

	if dc, err := mapDeliveryConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.deliv.Enabled()
		a.deliv.Apply(dc)
		switch {
		case wasEnabled && !dc.Enabled:
			a.log.Info("delivery disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.deliv.Stop(stopCtx)
			cancel()
		case !wasEnabled && dc.Enabled:
			a.log.Info("delivery enabled via config")
			a.deliv.Start(ctx)
		}
		if prev != nil && prev.Delivery != nil && newCfg.Delivery != nil &&
			(prev.Delivery.Sink != newCfg.Delivery.Sink || prev.Delivery.Telegram != newCfg.Delivery.Telegram) {
			a.log.Warn("delivery sink changed; restart required for changes to take effect")
		}
	}

	a.pprof.Reconfigure(ctx, mapPprofConfig(newCfg))

	a.mu.Lock()
	a.cfg = newCfg
	a.mu.Unlock()

	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)

	// Reminder times and the permission gate feed straight into scheduling.
	if changed["scheduler"] || changed["notifications"] {
		a.onTrigger(ctx, "config")
	}
}

// Stop shuts components down in reverse start order, each step bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStores()
		if a.logs != nil {
			_ = a.logs.Close()
		}
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		fn(stepCtx)
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("trigger", 2*time.Second, a.trig.Stop)
	step("delivery", 2*time.Second, a.deliv.Stop)
	step("pprof", time.Second, a.pprof.Stop)

	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) {
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("supervisor wait", logx.Err(err))
		}
		if !a.trig.Wait(c) {
			a.log.Warn("start resync still running; closing stores anyway")
		}
	})
	a.closeStores()

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStores() {
	if err := a.gstore.Close(); err != nil {
		a.log.Warn("garden close", logx.Err(err))
	}
	if err := a.kv.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
}

// State returns a copy of the current application state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) location() *time.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loc
}
