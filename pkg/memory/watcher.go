package memory

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// StoreWatcher watches the backing store file and invokes a callback
// when another process writes to it, so the next search refreshes the
// cache in full instead of incrementally.
type StoreWatcher struct {
	watcher   *fsnotify.Watcher
	path      string
	onDirty   func()
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// NewStoreWatcher starts watching the directory containing path.
// SQLite swaps WAL sidecar files around, so the watch is on the
// directory and events are filtered down to the store's file family.
func NewStoreWatcher(path string, onDirty func(), logger zerolog.Logger) (*StoreWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create store watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch store directory: %w", err)
	}

	sw := &StoreWatcher{
		watcher: w,
		path:    path,
		onDirty: onDirty,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go sw.loop()
	return sw, nil
}

func (sw *StoreWatcher) loop() {
	base := filepath.Base(sw.path)
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			sw.logger.Debug().Str("file", event.Name).Msg("Store file changed externally")
			sw.onDirty()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn().Err(err).Msg("Store watcher error")
		case <-sw.done:
			return
		}
	}
}

// Close stops the watcher. Safe to call more than once.
func (sw *StoreWatcher) Close() error {
	var err error
	sw.closeOnce.Do(func() {
		close(sw.done)
		err = sw.watcher.Close()
	})
	return err
}
