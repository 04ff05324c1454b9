package localnotify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("notification not found")
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrNoTrigger        = errors.New("notification trigger time is required")
)

// Payload is an opaque string map round-tripped with every notification.
type Payload map[string]string

// Clone returns an independent copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Scheduled is a pending notification.
type Scheduled struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
	Payload   Payload   `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store programs one-shot notifications.
type Store interface {
	ScheduleAt(ctx context.Context, title, body string, at time.Time, payload Payload) (string, error)
	// ListScheduled returns pending notifications ordered by trigger time.
	ListScheduled(ctx context.Context) ([]Scheduled, error)
	Cancel(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
}

// Permissions reports whether notifications may be scheduled.
type Permissions interface {
	Granted(ctx context.Context) (bool, error)
}
