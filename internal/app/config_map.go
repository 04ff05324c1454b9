package app

import (
	"fmt"
	"strings"
	"time"

	"plantcare/internal/config"
	"plantcare/internal/delivery"
	"plantcare/internal/garden"
	"plantcare/internal/observability/pprof"
	"plantcare/internal/storage"
	"plantcare/internal/trigger"
	logx "plantcare/pkg/logx"
)

// DefaultResync is the periodic resync used when scheduler.resync is empty.
const DefaultResync = "@every 15m"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapGardenConfig(cfg *config.Config) (garden.Config, error) {
	gc := cfg.Garden
	out := garden.Config{
		Driver: strings.ToLower(strings.TrimSpace(gc.Driver)),
		Path:   strings.TrimSpace(gc.Path),
	}
	if out.Path == "" {
		switch out.Driver {
		case "sqlite", "sqlite3":
			out.Path = "./garden.db"
		default:
			out.Path = "./garden.json"
		}
	}
	var err error
	out.BusyTimeout, err = config.Duration("garden.busy_timeout", gc.BusyTimeout, time.Second)
	if err != nil {
		return garden.Config{}, err
	}
	return out, nil
}

// mapStorageConfig returns the KV config; an omitted section keeps state in memory.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			path = "./reminderd_state"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapDeliveryConfig maps the delivery section to runtime values. An omitted
// section means enabled with defaults.
func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	out := delivery.Config{
		Enabled:         true,
		Workers:         2,
		QueueSize:       256,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     time.Minute,
		DedupMaxEntries: 2000,
		PollInterval:    5 * time.Second,
	}
	if cfg.Delivery == nil {
		return out, nil
	}
	d := cfg.Delivery
	out.Enabled = d.Enabled
	out.PersistDedup = d.PersistDedup
	if d.Workers != 0 {
		out.Workers = d.Workers
	}
	if d.QueueSize != 0 {
		out.QueueSize = d.QueueSize
	}
	if d.RatePerSec != 0 {
		out.RatePerSec = d.RatePerSec
	}
	if d.RetryMax != 0 {
		out.RetryMax = d.RetryMax
	}
	if d.DedupMaxEntries != 0 {
		out.DedupMaxEntries = d.DedupMaxEntries
	}

	var err error
	if out.RetryBase, err = config.Duration("delivery.retry_base", d.RetryBase, out.RetryBase); err != nil {
		return delivery.Config{}, err
	}
	if out.RetryMaxDelay, err = config.Duration("delivery.retry_max_delay", d.RetryMaxDelay, out.RetryMaxDelay); err != nil {
		return delivery.Config{}, err
	}
	if out.DedupWindow, err = config.Duration("delivery.dedup_window", d.DedupWindow, out.DedupWindow); err != nil {
		return delivery.Config{}, err
	}
	if out.PollInterval, err = config.Duration("delivery.poll_interval", d.PollInterval, out.PollInterval); err != nil {
		return delivery.Config{}, err
	}
	return out, nil
}

// buildSink picks the delivery sink; log is the default.
func buildSink(cfg *config.Config, log logx.Logger) (delivery.Sink, error) {
	if cfg.Delivery == nil {
		return delivery.LogSink{Log: log}, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Delivery.Sink)) {
	case "", "log":
		return delivery.LogSink{Log: log}, nil
	case "telegram":
		return delivery.NewTelegramSink(delivery.TelegramConfig{
			Token:  cfg.Delivery.Telegram.Token,
			ChatID: cfg.Delivery.Telegram.ChatID,
		})
	default:
		return nil, fmt.Errorf("unknown delivery.sink: %s", cfg.Delivery.Sink)
	}
}

func mapTriggerConfig(cfg *config.Config) trigger.Config {
	schedule := strings.TrimSpace(cfg.Scheduler.Resync)
	if schedule == "" {
		schedule = DefaultResync
	}
	return trigger.Config{
		Schedule: schedule,
		Timezone: cfg.Scheduler.Timezone,
		OnStart:  cfg.Scheduler.ResyncOnStart,
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{Enabled: cfg.Pprof.Enabled, Addr: cfg.Pprof.Addr}
}
