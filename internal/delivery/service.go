package delivery

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"plantcare/internal/eventbus"
	"plantcare/internal/localnotify"
	"plantcare/internal/reminder"
	rtsup "plantcare/internal/runtime/supervisor"
	"plantcare/internal/storage"
	logx "plantcare/pkg/logx"
)

var (
	ErrDisabled  = errors.New("delivery disabled")
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery stopped")
)

// Event types published besides eventbus.TypeReminderFired.
const (
	TypeReminderFailed  eventbus.Type = "reminder.failed"
	TypeReminderDeduped eventbus.Type = "reminder.deduped"
)

const dedupPrefix = "dedup/"

type job struct {
	n       localnotify.Scheduled
	firedAt time.Time
	// dedupKey is computed at enqueue time.
	dedupKey string
}

// Service implements the fire pipeline:
// poll + queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	store localnotify.Store
	sink  Sink
	bus   eventbus.Bus
	kv    storage.KV
	now   func() time.Time

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

// WithDedupStore persists dedup windows so a restart does not refire.
func WithDedupStore(kv storage.KV) Option  { return func(s *Service) { s.kv = kv } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(cfg Config, store localnotify.Store, sink Sink, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log.With(logx.String("comp", "delivery")),
		store: store,
		sink:  sink,
		bus:   bus,
		now:   time.Now,
		dedup: map[string]time.Time{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the configuration. Worker count and queue size take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	s.cfg = cfg
	// Burst equals the per-second rate so a batch of reminders due at the
	// same minute is not spread out needlessly.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the poll loop and the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// Delivery is best-effort and must not take down the daemon.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	sup.GoRestart("poll", func(c context.Context) error {
		return s.pollLoop(c)
	})
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			if c.Err() != nil {
				return c.Err()
			}
			if s.stopping() {
				return nil
			}
			return errors.New("delivery worker exited unexpectedly")
		})
	}
	s.log.Info("delivery started", logx.Int("workers", workers), logx.String("sink", s.sinkName()))
}

func (s *Service) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDone != nil
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		// Workers drain q; the poll loop only ends on cancel.
		for len(q) > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) pollLoop(ctx context.Context) error {
	s.mu.Lock()
	every := s.cfg.PollInterval
	s.mu.Unlock()

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("delivery poll failed", logx.Err(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll fires every scheduled notification whose trigger is not after now and
// reports how many were handed to the pipeline. Fired notifications are
// removed from the store before they are queued.
func (s *Service) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	running := s.accepting && s.queue != nil
	s.mu.Unlock()
	if !running {
		return 0, ErrStopped
	}
	list, err := s.store.ListScheduled(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	fired := 0
	for _, n := range list {
		if n.At.After(now) {
			// Ordered by trigger; nothing later is due.
			break
		}
		if err := s.store.Cancel(ctx, n.ID); err != nil {
			if errors.Is(err, localnotify.ErrNotFound) {
				continue
			}
			return fired, fmt.Errorf("remove fired %s: %w", n.ID, err)
		}
		if err := s.enqueue(ctx, n, now); err != nil {
			s.log.Warn("reminder dropped", logx.String("id", n.ID), logx.String("title", n.Title), logx.Err(err))
			s.publish(TypeReminderFailed, n, now, err)
			continue
		}
		fired++
	}
	return fired, nil
}

func (s *Service) enqueue(ctx context.Context, n localnotify.Scheduled, firedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	maxEntries := s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	if window > 0 && !s.dedupAllow(ctx, key, window, maxEntries) {
		s.publish(TypeReminderDeduped, n, firedAt, nil)
		return nil
	}

	select {
	case q <- job{n: n, firedAt: firedAt, dedupKey: key}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sink.Send(callCtx, j.n)
		cancel()
		if err == nil {
			s.appendHistory(j.n)
			s.publish(eventbus.TypeReminderFired, j.n, j.firedAt, nil)
			return
		}
		lastErr = err
		s.log.Debug("reminder send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt >= attempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.log.Warn("reminder not delivered", logx.String("id", j.n.ID), logx.String("sink", sink.Name()), logx.Err(lastErr))
	s.publish(TypeReminderFailed, j.n, j.firedAt, lastErr)
}

func (s *Service) publish(typ eventbus.Type, n localnotify.Scheduled, firedAt time.Time, err error) {
	if s.bus == nil {
		return
	}
	ev := FiredEvent{
		ID:       n.ID,
		GroupKey: n.Payload[reminder.KeyGroup],
		TaskKey:  n.Payload[reminder.KeyTask],
		PlantIDs: reminder.PlantIDs(n.Payload),
		At:       n.At,
		FiredAt:  firedAt,
		Sink:     s.sinkName(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: firedAt, Data: ev})
}

func (s *Service) sinkName() string {
	if s.sink == nil {
		return ""
	}
	return s.sink.Name()
}

// Snapshot returns recently delivered reminders, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n localnotify.Scheduled) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: s.now(), Title: n.Title, Body: n.Body})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

// dedupKey identifies one occurrence of a reminder group.
func dedupKey(n localnotify.Scheduled) string {
	h := fnv.New64a()
	if g := n.Payload[reminder.KeyGroup]; g != "" {
		_, _ = h.Write([]byte(g))
	} else {
		_, _ = h.Write([]byte(n.Title))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(n.Body))
	}
	_, _ = h.Write([]byte("|" + strconv.FormatInt(n.At.Unix(), 10)))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration, maxEntries int) bool {
	now := s.now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if s.kv != nil {
		if b, ok, err := s.kv.Get(ctx, dedupPrefix+key); err == nil && ok {
			if ms, err := strconv.ParseInt(string(b), 10, 64); err == nil {
				if until := time.UnixMilli(ms); now.Before(until) {
					s.dmu.Lock()
					s.dedup[key] = until
					s.dmu.Unlock()
					return false
				}
			}
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if s.kv != nil {
		if err := s.kv.Put(ctx, dedupPrefix+key, []byte(strconv.FormatInt(until.UnixMilli(), 10))); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// Exponential backoff: base * 2^(attempt-1), capped.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
