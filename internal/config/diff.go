package config

import (
	"reflect"
	"sort"
	"strings"

	logx "plantcare/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and
// structured attrs safe for logging. Secrets like the telegram token are
// reported only as "set".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Session.UserID) != strings.TrimSpace(newCfg.Session.UserID) {
		changed = append(changed, "session")
		attrs = append(attrs, logx.Bool("session.user_set", strings.TrimSpace(newCfg.Session.UserID) != ""))
	}

	if !reflect.DeepEqual(oldCfg.Garden, newCfg.Garden) {
		changed = append(changed, "garden")
		attrs = append(attrs,
			logx.String("garden.driver", strings.TrimSpace(newCfg.Garden.Driver)),
			logx.Bool("garden.path_set", strings.TrimSpace(newCfg.Garden.Path) != ""),
		)
	}

	// Storage. Nil means in-memory.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	if !strings.EqualFold(strings.TrimSpace(oldCfg.Notifications.Permission), strings.TrimSpace(newCfg.Notifications.Permission)) {
		changed = append(changed, "notifications")
		attrs = append(attrs, logx.String("notifications.permission", strings.TrimSpace(newCfg.Notifications.Permission)))
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.Resync) != strings.TrimSpace(newCfg.Scheduler.Resync) ||
		oldCfg.Scheduler.ResyncOnStart != newCfg.Scheduler.ResyncOnStart {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.resync", strings.TrimSpace(newCfg.Scheduler.Resync)),
		)
	}

	// Delivery. A nil section means runtime defaults.
	oD, nD := derefDelivery(oldCfg.Delivery), derefDelivery(newCfg.Delivery)
	if !reflect.DeepEqual(oD, nD) {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.enabled", nD.Enabled),
			logx.Int("delivery.workers", nD.Workers),
			logx.Int("delivery.queue_size", nD.QueueSize),
			logx.Int("delivery.rate_per_sec", nD.RatePerSec),
			logx.Int("delivery.retry_max", nD.RetryMax),
			logx.Bool("delivery.persist_dedup", nD.PersistDedup),
			logx.String("delivery.sink", strings.TrimSpace(nD.Sink)),
			logx.Bool("delivery.telegram_token_set", strings.TrimSpace(nD.Telegram.Token) != ""),
		)
	}

	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefDelivery(d *DeliveryConfig) DeliveryConfig {
	if d == nil {
		return DeliveryConfig{Enabled: true}
	}
	return *d
}
