package config

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "plantcare/pkg/logx"
)

const (
	reloadDebounce = 250 * time.Millisecond
	watchRetryMin  = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

// Watch reloads the file whenever it changes until ctx ends. Editors often
// write in several steps, so events are debounced. The directory is watched
// rather than the file so rename-on-save keeps working. A watcher that
// breaks is recreated with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	log := m.log.With(logx.String("dir", dir))

	reload := time.AfterFunc(time.Hour, func() { m.reload(ctx) })
	reload.Stop()
	defer reload.Stop()
	touch := func() { reload.Reset(reloadDebounce) }

	retry := watchRetryMin
	for ctx.Err() == nil {
		err := m.watchDir(ctx, dir, file, touch)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			retry = watchRetryMin
		}
		wait := retry + rand.N(retry/2+1)
		log.Warn("config watcher stopped; restarting", logx.Err(err), logx.Duration("backoff", wait))
		retry = min(retry*2, watchRetryMax)

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

// watchDir runs one fsnotify watcher. It returns nil when a running watcher
// broke and the setup error when it could not start.
func (m *Manager) watchDir(ctx context.Context, dir, file string, touch func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("file", file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				touch()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			switch {
			case strings.Contains(msg, "overflow"):
				m.log.Warn("config watch overflow; reloading", logx.Err(err))
				touch()
			case strings.Contains(msg, "closed"):
				return nil
			default:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
