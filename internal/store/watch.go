package store

import (
	"context"

	"github.com/iudanet/storysync/internal/storage"
)

// WatchExternalChanges subscribes to backend change notifications. Each change
// invalidates the cached document and emits document_changed_externally.
// Returns ErrUnsupported when the backend cannot watch. The returned channel
// is closed once ctx is done and the watcher has stopped.
func (s *Service) WatchExternalChanges(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := storage.Watcher(s.backend)
	if err != nil {
		return nil, err
	}

	events, err := watcher.Watch(ctx)
	if err != nil {
		return nil, s.fail("watch", "", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			s.InvalidateCache(ev.Key)
			s.logger.Debug("document changed externally", "key", ev.Key, "op", ev.Op)
			s.emit(EventDocumentChangedExternally, map[string]any{
				"key": ev.Key,
				"op":  string(ev.Op),
			})
		}
	}()

	return done, nil
}
