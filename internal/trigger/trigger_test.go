package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "plantcare/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		kind    SpecKind
		cron    string
		every   time.Duration
		wantErr bool
	}{
		{in: "*/15 * * * *", kind: SpecCron, cron: "*/15 * * * *"},
		{in: "@every 15m", kind: SpecCron, cron: "@every 15m"},
		{in: "cron:@hourly", kind: SpecCron, cron: "@hourly"},
		{in: "15m", kind: SpecInterval, every: 15 * time.Minute},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute},
		{in: "every: 1h", kind: SpecInterval, every: time.Hour},
		{in: "interval:00:00", wantErr: true},
		{in: "00:75", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
		}
		if got.Kind != tt.kind || got.Cron != tt.cron || got.Every != tt.every {
			t.Fatalf("ParseSchedule(%q) = %+v", tt.in, got)
		}
	}
	if spec, _ := ParseSchedule("90s"); spec.CronSpec() != "@every 1m30s" {
		t.Fatalf("CronSpec = %q", spec.CronSpec())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, string) {}
	if _, err := New(Config{Schedule: "61 * * * *"}, noop, logx.Nop()); err == nil {
		t.Fatalf("expected invalid cron error")
	}
	if _, err := New(Config{Schedule: "15m", Timezone: "Mars/Olympus"}, noop, logx.Nop()); err == nil {
		t.Fatalf("expected invalid timezone error")
	}
}

func TestServiceRunsOnStartAndSchedule(t *testing.T) {
	t.Parallel()
	var starts, ticks atomic.Int32
	fn := func(_ context.Context, reason string) {
		switch reason {
		case "start":
			starts.Add(1)
		case "schedule":
			ticks.Add(1)
		}
	}
	s, err := New(Config{Schedule: "@every 1s", OnStart: true}, fn, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if s.Next().IsZero() {
		t.Fatalf("Next should be set while running")
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && (starts.Load() == 0 || ticks.Load() == 0) {
		time.Sleep(20 * time.Millisecond)
	}
	if starts.Load() != 1 || ticks.Load() == 0 {
		t.Fatalf("starts=%d ticks=%d", starts.Load(), ticks.Load())
	}

	if err := s.Apply(Config{Schedule: "@every 1h"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next := s.Next(); time.Until(next) < 30*time.Minute {
		t.Fatalf("next after Apply = %v", next)
	}
}

func TestStopWaitsForStartRun(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	fn := func(_ context.Context, reason string) {
		if reason != "start" {
			return
		}
		close(entered)
		<-release
		finished.Store(true)
	}
	s, err := New(Config{Schedule: "@every 1h", OnStart: true}, fn, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start(context.Background())
	<-entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Stop(short)
	if finished.Load() {
		t.Fatalf("start run finished before release")
	}
	if s.Wait(short) {
		t.Fatalf("Wait reported done while the start run is blocked")
	}

	close(release)
	if !s.Wait(context.Background()) {
		t.Fatalf("Wait did not report done")
	}
	if !finished.Load() {
		t.Fatalf("Wait returned before the start run finished")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)
	got, err := Preview("0 7 * * *", time.UTC, from, 2)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := []time.Time{
		time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 7, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("Preview[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
