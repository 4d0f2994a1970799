package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces a burst of filesystem events (an editor's
// save-via-rename, several files touched in one commit) into one reload.
const watchDebounce = 150 * time.Millisecond

// watcher emits a signal on reload whenever a `.md` file changes under any
// watched directory. Grounded on the teacher's internal/skills.Watcher.
type watcher struct {
	dirs    []string
	reload  chan struct{}
}

func newWatcher(dirs []string) *watcher {
	return &watcher{dirs: dirs, reload: make(chan struct{}, 1)}
}

// Start begins watching until ctx is cancelled. Reload fires on the
// returned channel (dropping events rather than blocking if the consumer
// is behind — a missed tick is harmless since the next one re-scans
// everything).
func (w *watcher) Start(ctx context.Context) (<-chan struct{}, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new watcher: %w", err)
	}

	for _, dir := range w.dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if err := fsw.Add(abs); err != nil && !os.IsNotExist(err) {
			fsw.Close()
			return nil, fmt.Errorf("watch agents dir (%s): %w", abs, err)
		}
	}

	go func() {
		defer fsw.Close()
		defer close(w.reload)

		var pending bool
		var timer *time.Timer
		var timerC <-chan time.Time

		flush := func() {
			if !pending {
				return
			}
			pending = false
			select {
			case w.reload <- struct{}{}:
			default:
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".md") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				pending = true
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(watchDebounce)
				}
				timerC = timer.C
			case <-timerC:
				flush()
				timerC = nil
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w.reload, nil
}
