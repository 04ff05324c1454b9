package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

const sampleYAML = `
logging:
  level: DEBUG
  console: true
session:
  user_id: u-1
garden:
  driver: sqlite
  path: ./garden.db
  busy_timeout: 2s
storage:
  driver: file
  path: ./state
notifications:
  permission: granted
scheduler:
  timezone: UTC
  resync: "@every 15m"
  resync_on_start: true
delivery:
  enabled: true
  workers: 2
  retry_base: 250ms
  sink: log
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "reminderd.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.UserID != "u-1" || cfg.Garden.Driver != "sqlite" || cfg.Scheduler.Resync != "@every 15m" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Delivery == nil || cfg.Delivery.Workers != 2 || cfg.Delivery.RetryBase != "250ms" {
		t.Fatalf("delivery = %+v", cfg.Delivery)
	}
	if m.Get() != cfg {
		t.Fatalf("Get should return the committed config")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, body, want string
	}{
		{"unknown key", "c.json", `{"garden":{"driver":"file"},"plugins":{}}`, "unknown field"},
		{"trailing data", "c.json", `{"garden":{}}{"garden":{}}`, "trailing data"},
		{"bad timezone", "c.json", `{"scheduler":{"timezone":"Mars/Olympus"}}`, "scheduler.timezone"},
		{"bad duration", "c.yaml", "delivery:\n  enabled: true\n  retry_base: soon\n", "delivery.retry_base"},
		{"negative duration", "c.yaml", "garden:\n  busy_timeout: -1s\n", "garden.busy_timeout"},
		{"bad permission", "c.json", `{"notifications":{"permission":"maybe"}}`, "notifications.permission"},
		{"bad garden driver", "c.json", `{"garden":{"driver":"postgres"}}`, "garden.driver"},
		{"sqlite storage without path", "c.json", `{"storage":{"driver":"sqlite"}}`, "storage.path"},
		{"telegram without token", "c.json", `{"delivery":{"enabled":true,"sink":"telegram"}}`, "delivery.telegram"},
		{"bad level", "c.json", `{"logging":{"level":"LOUD"}}`, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewManager(writeFile(t, tt.file, tt.body)).Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Second},
		{raw: "0s", want: time.Second},
		{raw: " 90s ", want: 90 * time.Second},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Duration("x", tt.raw, time.Second)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Duration(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("Duration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Scheduler: SchedulerConfig{Timezone: "UTC"},
		Delivery:  &DeliveryConfig{Enabled: true, Sink: "telegram", Telegram: TelegramConfig{Token: "a", ChatID: 1}},
	}
	newCfg := &Config{
		Scheduler:     SchedulerConfig{Timezone: "Asia/Jakarta"},
		Notifications: NotificationsConfig{Permission: "denied"},
		Delivery:      &DeliveryConfig{Enabled: true, Sink: "telegram", Telegram: TelegramConfig{Token: "b", ChatID: 1}},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"delivery", "notifications", "scheduler"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}

	if changed, _ := SummarizeConfigChange(&Config{}, &Config{Delivery: &DeliveryConfig{Enabled: true}}); len(changed) != 0 {
		t.Fatalf("explicit defaults reported as change: %v", changed)
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.json", `{"scheduler":{"timezone":"Local"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	validated := make(chan struct{}, 8)
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		validated <- struct{}{}
		return nil
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// The first write is invalid and never published; later writes are valid.
	// Writes are spaced past the debounce so each one is parsed.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(600 * time.Millisecond)
	defer tick.Stop()
	wrote := 0
	for {
		select {
		case cfg := <-ch:
			if cfg.Scheduler.Timezone != "UTC" {
				t.Fatalf("published %+v", cfg.Scheduler)
			}
			if m.Get().Scheduler.Timezone != "UTC" {
				t.Fatalf("published config not committed")
			}
			if len(validated) == 0 {
				t.Fatalf("validator not called")
			}
			return
		case <-tick.C:
			body := `{"scheduler":{"timezone":"UTC"}}`
			if wrote == 0 {
				body = `{"scheduler":{"timezone":"Nowhere/None"}}`
			}
			wrote++
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		case <-deadline:
			t.Fatalf("no config published")
		}
	}
}
