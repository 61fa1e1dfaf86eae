package filestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iudanet/storysync/internal/storage"
)

// DefaultWatchDebounce coalesces bursts of events for the same key
const DefaultWatchDebounce = 50 * time.Millisecond

// Watch reports changes of document files, including writes made by this
// process. Events for the same key within the debounce window are merged;
// the last operation wins.
func (s *Storage) Watch(ctx context.Context) (<-chan storage.ChangeEvent, error) {
	if err := s.checkInitialized("watch"); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, storage.BackendError("watch", "", fmt.Errorf("failed to create watcher: %w", err))
	}
	if err := w.Add(s.documentsPath()); err != nil {
		w.Close()
		return nil, storage.BackendError("watch", "", fmt.Errorf("failed to watch %s: %w", s.documentsPath(), err))
	}

	out := make(chan storage.ChangeEvent, 64)
	go s.watchLoop(ctx, w, out)
	return out, nil
}

func (s *Storage) watchLoop(ctx context.Context, w *fsnotify.Watcher, out chan<- storage.ChangeEvent) {
	defer close(out)
	defer w.Close()

	debounce := s.watchDebounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	pending := make(map[string]storage.ChangeOp)
	timer := time.NewTimer(debounce)
	timer.Stop()

	flush := func() bool {
		keys := make([]string, 0, len(pending))
		for k := range pending {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			select {
			case out <- storage.ChangeEvent{Key: k, Op: pending[k]}:
			case <-ctx.Done():
				return false
			}
			delete(pending, k)
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			key, ok := keyFromFile(ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				pending[key] = storage.ChangeRemove
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[key] = storage.ChangeWrite
			default:
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", "root", s.root, "error", err)

		case <-timer.C:
			if !flush() {
				return
			}
		}
	}
}
