package runstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchStop derives a context that is cancelled when a file named
// "stop" appears in the run's signals directory. Pending units check
// the context before starting; in-flight units settle normally, so a
// stop is a graceful drain rather than an abort.
//
// If the watcher cannot be created the original context is returned
// and runs proceed without stop-file support.
func (r *Run) WatchStop(ctx context.Context) (context.Context, func()) {
	signalsDir := filepath.Join(r.Dir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return ctx, func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ctx, func() {}
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return ctx, func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) == "stop" &&
					(event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
					r.log.Warn("signals", "stop file detected, draining run", nil)
					cancel()
					return
				}
			case <-watcher.Errors:
				// Ignore errors, keep watching
			}
		}
	}()

	stop := func() {
		close(done)
		cancel()
	}
	return ctx, stop
}
