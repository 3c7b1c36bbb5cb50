package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/config"
)

// debounceDelay lets a burst of edits to a repository directory settle into a
// single refresh.
const debounceDelay = 2 * time.Second

// Watcher refreshes a distribution when a *.repo file in its repository
// directory changes.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	dirs     map[string][]string // reposdir -> distro ids
	delay    time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewWatcher watches the repository directory of every distribution.
func NewWatcher(r *Registry, distros []config.Distro) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create repository watcher: %w", err)
	}

	dirs := map[string][]string{}
	for _, d := range distros {
		dir := filepath.Clean(d.ReposDir)
		if _, ok := dirs[dir]; !ok {
			if err := w.Add(dir); err != nil {
				_ = w.Close()
				return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
			}
		}
		dirs[dir] = append(dirs[dir], d.ID)
	}

	return &Watcher{
		registry: r,
		watcher:  w,
		dirs:     dirs,
		delay:    debounceDelay,
		timers:   map[string]*time.Timer{},
	}, nil
}

// Run handles events until ctx is done, then releases the watch.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".repo" || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Repository definition changed", logger.Fields{"file": ev.Name, "op": ev.Op.String()})
			for _, id := range w.dirs[filepath.Dir(ev.Name)] {
				w.schedule(ctx, id)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Repository watcher error", logger.Fields{"error": err})
		}
	}
}

// schedule (re)arms the debounce timer of one distribution.
func (w *Watcher) schedule(ctx context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[id]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[id] = time.AfterFunc(w.delay, func() {
		defer w.wg.Done()
		if err := w.registry.Refresh(ctx, id); err != nil {
			logger.Warn("Refresh after repository change failed", logger.Fields{"distro": id, "error": err})
			return
		}
		logger.Info("Refreshed after repository change", logger.Fields{"distro": id})
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for id, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, id)
	}
	w.mu.Unlock()
	w.wg.Wait()
	_ = w.watcher.Close()
}
