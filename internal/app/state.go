package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"plantcare/internal/reminder"
	"plantcare/internal/storage"
)

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("no signed-in user")

const (
	keyUserID       = "session/user_id"
	keyLastResyncAt = "session/last_resync_at"
	keyLastResult   = "session/last_result"
)

// State is the application state that outlives a single call: who is signed
// in and how the last resync went.
type State struct {
	UserID       string
	LastResyncAt time.Time
	LastResult   ResyncSummary
}

// ResyncSummary is the persisted form of a reminder.Result.
type ResyncSummary struct {
	Reason    string `json:"reason,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Cancelled int    `json:"cancelled"`
	Scheduled int    `json:"scheduled"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func summarize(reason string, res reminder.Result, err error) ResyncSummary {
	s := ResyncSummary{
		Reason:    reason,
		Skipped:   res.Skipped,
		Cancelled: res.Cancelled,
		Scheduled: len(res.Scheduled),
		Failed:    len(res.Failures),
	}
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

type stateStore struct {
	kv storage.KV
}

func (s stateStore) load(ctx context.Context) (State, error) {
	var st State
	if b, ok, err := s.kv.Get(ctx, keyUserID); err != nil {
		return st, err
	} else if ok {
		st.UserID = string(b)
	}
	if b, ok, err := s.kv.Get(ctx, keyLastResyncAt); err != nil {
		return st, err
	} else if ok {
		if t, err := time.Parse(time.RFC3339Nano, string(b)); err == nil {
			st.LastResyncAt = t
		}
	}
	if b, ok, err := s.kv.Get(ctx, keyLastResult); err != nil {
		return st, err
	} else if ok {
		_ = json.Unmarshal(b, &st.LastResult)
	}
	return st, nil
}

func (s stateStore) saveUser(ctx context.Context, userID string) error {
	if userID == "" {
		return s.kv.Delete(ctx, keyUserID)
	}
	return s.kv.Put(ctx, keyUserID, []byte(userID))
}

func (s stateStore) saveResync(ctx context.Context, at time.Time, sum ResyncSummary) error {
	b, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, keyLastResyncAt, []byte(at.UTC().Format(time.RFC3339Nano))); err != nil {
		return err
	}
	return s.kv.Put(ctx, keyLastResult, b)
}
