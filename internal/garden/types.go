package garden

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("plant not found")
	ErrNoUser    = errors.New("user id is required")
	ErrNoName    = errors.New("plant name is required")
	ErrNoTask    = errors.New("task is not in the care plan")
	ErrBadStatus = errors.New("journal status must be Done or Skipped")
)

// Plant is a stored plant. CarePlan and Journals hold raw JSON as written by
// clients; callers parse them with the careplan package.
type Plant struct {
	ID        string
	UserID    string
	Name      string
	CarePlan  string
	Journals  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists plants.
type Store interface {
	FetchPlantsForUser(ctx context.Context, userID string) ([]Plant, error)
	GetPlant(ctx context.Context, id string) (Plant, error)
	InsertPlant(ctx context.Context, p Plant) error
	// UpdatePlant replaces name, care plan and journals of an existing plant.
	UpdatePlant(ctx context.Context, p Plant) error
	DeletePlant(ctx context.Context, id string) error
	Close() error
}

// Config selects a Store driver.
type Config struct {
	Driver      string // "file" (default) or "sqlite"
	Path        string
	BusyTimeout time.Duration
}
