package config

// Config is the reminderd configuration file. Unknown keys are rejected.
type Config struct {
	Logging       LoggingConfig       `json:"logging"`
	Session       SessionConfig       `json:"session"`
	Garden        GardenConfig        `json:"garden"`
	Storage       *StorageConfig      `json:"storage,omitempty"`
	Notifications NotificationsConfig `json:"notifications"`
	Scheduler     SchedulerConfig     `json:"scheduler"`

	// Delivery may be omitted; it then defaults to enabled with the log sink.
	Delivery *DeliveryConfig `json:"delivery,omitempty"`
	Pprof    PprofConfig     `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SessionConfig names the user signed in when the daemon starts.
// An empty UserID starts signed out.
type SessionConfig struct {
	UserID string `json:"user_id"`
}

// GardenConfig selects the plant store.
//
// Example:
//
//	"garden": { "driver": "sqlite", "path": "./garden.db" }
type GardenConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// StorageConfig controls persistence of app state and scheduled notifications.
// Omitted or driver "none" keeps everything in memory.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// NotificationsConfig carries the notification permission gate.
// Permission is "granted" (default) or "denied".
type NotificationsConfig struct {
	Permission string `json:"permission,omitempty"`
}

// SchedulerConfig controls reminder times and the periodic resync.
type SchedulerConfig struct {
	// Timezone used for reminder times and due-today days. Empty means local.
	Timezone string `json:"timezone,omitempty"`

	// Resync accepts cron ("*/15 * * * *"), "@every 15m", a Go duration or an HH:MM interval.
	Resync        string `json:"resync,omitempty"`
	ResyncOnStart bool   `json:"resync_on_start,omitempty"`
}

// DeliveryConfig controls the firing pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type DeliveryConfig struct {
	Enabled         bool           `json:"enabled"`
	Workers         int            `json:"workers,omitempty"`
	QueueSize       int            `json:"queue_size,omitempty"`
	RatePerSec      int            `json:"rate_per_sec,omitempty"`
	RetryMax        int            `json:"retry_max,omitempty"`
	RetryBase       string         `json:"retry_base,omitempty"`
	RetryMaxDelay   string         `json:"retry_max_delay,omitempty"`
	DedupWindow     string         `json:"dedup_window,omitempty"`
	DedupMaxEntries int            `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool           `json:"persist_dedup,omitempty"`
	PollInterval    string         `json:"poll_interval,omitempty"`
	Sink            string         `json:"sink,omitempty"` // log (default) or telegram
	Telegram        TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"` // never logged
	ChatID int64  `json:"chat_id,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Prefer binding to localhost (the default "127.0.0.1:6060").
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}
