package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Reload is one attempt to re-read the user config after it changed on disk.
type Reload struct {
	User *UserConfig
	Err  error
}

// Watcher reports edits to <dataDir>/config.toml. The directory is watched
// rather than the file so that editors which save by rename are seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	changes  chan Reload

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewWatcher(dataDir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fw.Add(dataDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dataDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     filepath.Join(dataDir, "config.toml"),
		watcher:  fw,
		debounce: reloadDebounce,
		changes:  make(chan Reload, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	go w.run()
	return w, nil
}

// Changes delivers a Reload after each burst of writes to the config file.
func (w *Watcher) Changes() <-chan Reload {
	return w.changes
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.changes)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.emit()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if DebugLog != nil {
				DebugLog.Printf("[ConfigWatcher] error: %v", err)
			}
		}
	}
}

func (w *Watcher) emit() {
	user, err := LoadUserConfigFromPath(w.path)
	if err == nil && user == nil {
		// Removed or mid-rename; wait for the next event.
		return
	}
	if err == nil {
		_, err = ParseBackendKind(user.Backend.Kind)
	}
	if DebugLog != nil {
		DebugLog.Printf("[ConfigWatcher] config.toml changed (err=%v)", err)
	}

	r := Reload{User: user, Err: err}
	if err != nil {
		r.User = nil
	}
	select {
	case w.changes <- r:
	case <-w.ctx.Done():
	}
}
