package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "plantcare/pkg/logx"
)

// Validate checks values that the strict decoder cannot: enums, duration
// strings and the timezone name.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}

	switch strings.ToLower(strings.TrimSpace(c.Garden.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("garden.driver: unknown driver %q", c.Garden.Driver))
	}
	_, err := Duration("garden.busy_timeout", c.Garden.BusyTimeout, 0)
	add(err)

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(errors.New("storage.path is required when storage.driver=sqlite"))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err := Duration("storage.busy_timeout", s.BusyTimeout, 0)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Notifications.Permission)) {
	case "", "granted", "allow", "on", "true", "denied", "deny", "off", "false":
	default:
		add(fmt.Errorf("notifications.permission: expected granted or denied, got %q", c.Notifications.Permission))
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" && !strings.EqualFold(tz, "local") {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	if d := c.Delivery; d != nil {
		for _, f := range []struct{ path, raw string }{
			{"delivery.retry_base", d.RetryBase},
			{"delivery.retry_max_delay", d.RetryMaxDelay},
			{"delivery.dedup_window", d.DedupWindow},
			{"delivery.poll_interval", d.PollInterval},
		} {
			_, err := Duration(f.path, f.raw, 0)
			add(err)
		}
		if d.Workers < 0 || d.QueueSize < 0 || d.RatePerSec < 0 || d.RetryMax < 0 || d.DedupMaxEntries < 0 {
			add(errors.New("delivery: numeric fields must be >= 0"))
		}
		switch strings.ToLower(strings.TrimSpace(d.Sink)) {
		case "", "log":
		case "telegram":
			if strings.TrimSpace(d.Telegram.Token) == "" || d.Telegram.ChatID == 0 {
				add(errors.New("delivery.telegram: token and chat_id are required when sink=telegram"))
			}
		default:
			add(fmt.Errorf("delivery.sink: unknown sink %q", d.Sink))
		}
	}

	return errors.Join(errs...)
}
