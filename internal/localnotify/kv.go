package localnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"plantcare/internal/storage"
	logx "plantcare/pkg/logx"
)

const keyPrefix = "notif/"

// KVStore keeps notifications as JSON values under "notif/<id>".
type KVStore struct {
	kv  storage.KV
	log logx.Logger
	now func() time.Time
}

// Option configures a KVStore.
type Option func(*KVStore)

func WithLogger(l logx.Logger) Option { return func(s *KVStore) { s.log = l } }

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option { return func(s *KVStore) { s.now = now } }

func NewKVStore(kv storage.KV, opts ...Option) *KVStore {
	s := &KVStore{kv: kv, log: logx.Nop(), now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	s.log = s.log.With(logx.String("comp", "localnotify"))
	return s
}

// NewMemory returns a store that forgets everything on exit.
func NewMemory(opts ...Option) *KVStore {
	return NewKVStore(storage.NewMemory(), opts...)
}

func (s *KVStore) ScheduleAt(ctx context.Context, title, body string, at time.Time, payload Payload) (string, error) {
	if at.IsZero() {
		return "", ErrNoTrigger
	}
	n := Scheduled{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		At:        at,
		Payload:   payload.Clone(),
		CreatedAt: s.now(),
	}
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	if err := s.kv.Put(ctx, keyPrefix+n.ID, b); err != nil {
		return "", fmt.Errorf("schedule notification: %w", err)
	}
	s.log.Debug("notification scheduled", logx.String("id", n.ID), logx.Time("at", at))
	return n.ID, nil
}

func (s *KVStore) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	entries, err := s.kv.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Scheduled, 0, len(entries))
	for _, e := range entries {
		var n Scheduled
		if err := json.Unmarshal(e.Value, &n); err != nil {
			s.log.Warn("dropping unreadable notification", logx.String("key", e.Key), logx.Err(err))
			_ = s.kv.Delete(ctx, e.Key)
			continue
		}
		if n.ID == "" {
			n.ID = strings.TrimPrefix(e.Key, keyPrefix)
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}

func (s *KVStore) Cancel(ctx context.Context, id string) error {
	key := keyPrefix + id
	_, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("cancel notification %s: %w", id, err)
	}
	return nil
}

func (s *KVStore) CancelAll(ctx context.Context) error {
	entries, err := s.kv.List(ctx, keyPrefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.kv.Delete(ctx, e.Key); err != nil {
			return fmt.Errorf("cancel all: %w", err)
		}
	}
	return nil
}
