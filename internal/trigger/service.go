// Package trigger drives lifecycle resyncs: a cron schedule stands in for the
// app returning to the foreground, plus an optional run at start.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "plantcare/pkg/logx"
)

// Func runs one lifecycle trigger. reason is "start" or "schedule".
type Func func(ctx context.Context, reason string)

type Config struct {
	Schedule string
	Timezone string
	OnStart  bool
}

// Service fires Func on a cron schedule. Overlapping runs are skipped.
type Service struct {
	log    logx.Logger
	fn     Func
	parser cron.Parser

	mu      sync.Mutex
	cfg     Config
	spec    ParsedSpec
	loc     *time.Location
	c       *cron.Cron
	entry   cron.EntryID
	ctx     context.Context
	started bool

	// runs tracks trigger calls made outside the cron, such as the start run.
	runs sync.WaitGroup
}

func New(cfg Config, fn Func, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log.With(logx.String("comp", "trigger")),
		fn:     fn,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if err := s.applyLocked(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) applyLocked(cfg Config) error {
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	if _, err := s.parser.Parse(spec.CronSpec()); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	s.cfg, s.spec, s.loc = cfg, spec, loc
	return nil
}

// LoadLocation resolves a timezone name; empty means time.Local.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// Start begins triggering. ctx is handed to every Func call.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = ctx
	s.startCronLocked()
	onStart := s.cfg.OnStart
	s.mu.Unlock()

	if onStart {
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			s.fn(ctx, "start")
		}()
	}
}

func (s *Service) startCronLocked() {
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	ctx := s.ctx
	id, err := s.c.AddFunc(s.spec.CronSpec(), func() {
		if ctx.Err() != nil {
			return
		}
		s.fn(ctx, "schedule")
	})
	if err != nil {
		// Validated in applyLocked.
		s.log.Error("schedule rejected", logx.String("schedule", s.cfg.Schedule), logx.Err(err))
		return
	}
	s.entry = id
	s.c.Start()
	s.log.Info("trigger started",
		logx.String("schedule", s.spec.CronSpec()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.c.Entry(id).Next),
	)
}

// Apply swaps schedule and timezone, restarting the cron when running.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	if err := s.applyLocked(cfg); err != nil {
		return err
	}
	if !s.started || (prev.Schedule == cfg.Schedule && prev.Timezone == cfg.Timezone) {
		return nil
	}
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.startCronLocked()
	return nil
}

// Next returns the next scheduled run, zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Stop stops triggering and waits for a running Func until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	s.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return
		}
	}
	s.Wait(ctx)
}

// Wait blocks until the start run has returned or ctx is done.
func (s *Service) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Preview lists the next n run times of schedule after from.
func Preview(schedule string, loc *time.Location, from time.Time, n int) ([]time.Time, error) {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec.CronSpec())
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]time.Time, 0, n)
	t := from.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		out = append(out, t)
	}
	return out, nil
}
