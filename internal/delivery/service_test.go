package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"plantcare/internal/eventbus"
	"plantcare/internal/localnotify"
	"plantcare/internal/reminder"
	"plantcare/internal/storage"
	logx "plantcare/pkg/logx"
)

type recordSink struct {
	mu    sync.Mutex
	fails int
	sent  []localnotify.Scheduled
	calls int
}

func (*recordSink) Name() string { return "record" }

func (r *recordSink) Send(_ context.Context, n localnotify.Scheduled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fails {
		return errors.New("sink unavailable")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordSink) snapshot() (int, []localnotify.Scheduled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]localnotify.Scheduled(nil), r.sent...)
}

var now = time.Date(2024, 3, 1, 9, 0, 30, 0, time.UTC)

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		RatePerSec:    100,
		RetryMax:      3,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		DedupWindow:   time.Minute,
		PollInterval:  time.Hour,
	}
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ eventbus.Type) eventbus.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// waitAll waits until every type in typs was seen, in any order.
func waitAll(t *testing.T, ch <-chan eventbus.Event, typs ...eventbus.Type) {
	t.Helper()
	want := map[eventbus.Type]bool{}
	for _, typ := range typs {
		want[typ] = true
	}
	timeout := time.After(3 * time.Second)
	for len(want) > 0 {
		select {
		case ev := <-ch:
			delete(want, ev.Type)
		case <-timeout:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestServiceFiresDueReminders(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := localnotify.NewMemory()
	dueID, _ := store.ScheduleAt(ctx, "Fern, Ivy", "Time to water your 2 plants.", now.Add(-30*time.Second), localnotify.Payload{
		reminder.KeyType:     reminder.PayloadType,
		reminder.KeyGroup:    "Watering|09:00|EveryDay|",
		reminder.KeyTask:     "Watering",
		reminder.KeyPlantIDs: `["p1","p2"]`,
	})
	laterID, _ := store.ScheduleAt(ctx, "Cactus", "Time to prune your plant.", now.Add(time.Hour), nil)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	sink := &recordSink{}
	svc := New(testConfig(), store, sink, logx.Nop(), bus, WithClock(func() time.Time { return now }))
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	ev := waitEvent(t, events, eventbus.TypeReminderFired)
	fe, ok := ev.Data.(FiredEvent)
	if !ok || fe.ID != dueID || fe.TaskKey != "Watering" || len(fe.PlantIDs) != 2 {
		t.Fatalf("event = %+v", ev.Data)
	}

	_, sent := sink.snapshot()
	if len(sent) != 1 || sent[0].ID != dueID {
		t.Fatalf("sent = %+v", sent)
	}
	list, _ := store.ListScheduled(ctx)
	if len(list) != 1 || list[0].ID != laterID {
		t.Fatalf("store after fire = %+v", list)
	}
	if h := svc.Snapshot(); len(h) != 1 || h[0].Title != "Fern, Ivy" {
		t.Fatalf("history = %+v", h)
	}
}

func TestServiceRetriesFailedSends(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := localnotify.NewMemory()
	_, _ = store.ScheduleAt(ctx, "Fern", "Time to water your plant.", now, nil)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	sink := &recordSink{fails: 2}
	svc := New(testConfig(), store, sink, logx.Nop(), bus, WithClock(func() time.Time { return now }))
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	waitEvent(t, events, eventbus.TypeReminderFired)
	calls, sent := sink.snapshot()
	if calls != 3 || len(sent) != 1 {
		t.Fatalf("calls=%d sent=%d, want 3 and 1", calls, len(sent))
	}
}

func TestServiceGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := localnotify.NewMemory()
	_, _ = store.ScheduleAt(ctx, "Fern", "Time to water your plant.", now, nil)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	cfg := testConfig()
	cfg.RetryMax = 1
	sink := &recordSink{fails: 10}
	svc := New(cfg, store, sink, logx.Nop(), bus, WithClock(func() time.Time { return now }))
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	ev := waitEvent(t, events, TypeReminderFailed)
	if fe := ev.Data.(FiredEvent); fe.Error == "" {
		t.Fatalf("failed event without error: %+v", fe)
	}
	if calls, _ := sink.snapshot(); calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestServiceDedupsSameOccurrence(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := storage.NewMemory()
	store := localnotify.NewMemory()
	payload := localnotify.Payload{reminder.KeyGroup: "Watering|09:00|EveryDay|"}
	at := now.Add(-time.Second)
	_, _ = store.ScheduleAt(ctx, "Fern", "b", at, payload)
	_, _ = store.ScheduleAt(ctx, "Fern", "b", at, payload)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	sink := &recordSink{}
	svc := New(testConfig(), store, sink, logx.Nop(), bus,
		WithClock(func() time.Time { return now }), WithDedupStore(kv))
	svc.Start(ctx)

	waitAll(t, events, TypeReminderDeduped, eventbus.TypeReminderFired)
	svc.Stop(context.Background())
	if _, sent := sink.snapshot(); len(sent) != 1 {
		t.Fatalf("sent %d, want 1", len(sent))
	}

	// A fresh service sharing the dedup store suppresses the same occurrence.
	_, _ = store.ScheduleAt(ctx, "Fern", "b", at, payload)
	sink2 := &recordSink{}
	svc2 := New(testConfig(), store, sink2, logx.Nop(), bus,
		WithClock(func() time.Time { return now }), WithDedupStore(kv))
	svc2.Start(ctx)
	defer svc2.Stop(context.Background())
	waitEvent(t, events, TypeReminderDeduped)
	if _, sent := sink2.snapshot(); len(sent) != 0 {
		t.Fatalf("restarted service resent %d reminders", len(sent))
	}
}

func TestPollRequiresRunningService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := localnotify.NewMemory()
	_, _ = store.ScheduleAt(ctx, "Fern", "b", now.Add(-time.Minute), nil)

	svc := New(testConfig(), store, &recordSink{}, logx.Nop(), nil, WithClock(func() time.Time { return now }))
	if _, err := svc.Poll(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("Poll err = %v, want ErrStopped", err)
	}
	if list, _ := store.ListScheduled(ctx); len(list) != 1 {
		t.Fatalf("stopped poll removed reminders")
	}
}

func TestFormatMessageEscapes(t *testing.T) {
	t.Parallel()
	got := FormatMessage(localnotify.Scheduled{Title: "Fern <3", Body: "water & mist"})
	want := "🌱 <b>Fern &lt;3</b>\nwater &amp; mist"
	if got != want {
		t.Fatalf("FormatMessage = %q, want %q", got, want)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > time.Second {
			t.Fatalf("attempt %d delay %v out of range", attempt, d)
		}
	}
}
