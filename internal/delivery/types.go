package delivery

import (
	"context"
	"time"

	"plantcare/internal/localnotify"
)

// Config controls polling and the send pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	PollInterval    time.Duration
}

// Sink shows a fired reminder to the user.
type Sink interface {
	Name() string
	Send(ctx context.Context, n localnotify.Scheduled) error
}

// FiredEvent is the payload of reminder.fired and reminder.failed events.
type FiredEvent struct {
	ID       string    `json:"id"`
	GroupKey string    `json:"group_key,omitempty"`
	TaskKey  string    `json:"task_key,omitempty"`
	PlantIDs []string  `json:"plant_ids,omitempty"`
	At       time.Time `json:"at"`
	FiredAt  time.Time `json:"fired_at"`
	Sink     string    `json:"sink"`
	Error    string    `json:"error,omitempty"`
}

type HistoryItem struct {
	At    time.Time
	Title string
	Body  string
}
