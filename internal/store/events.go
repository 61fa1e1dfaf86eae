package store

import (
	"log/slog"
	"time"
)

// EventName identifies a storage service event
type EventName string

const (
	EventDocumentSaved             EventName = "document_saved"
	EventDocumentLoaded            EventName = "document_loaded"
	EventDocumentDeleted           EventName = "document_deleted"
	EventMetadataUpdated           EventName = "metadata_updated"
	EventStorageCleared            EventName = "storage_cleared"
	EventStorageError              EventName = "storage_error"
	EventDocumentChangedExternally EventName = "document_changed_externally"
)

// Event is delivered to listeners synchronously after the operation completes
type Event struct {
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload"`
	Name    EventName      `json:"name"`
}

// Listener receives events. A panicking listener is recovered and logged.
type Listener func(Event)

type listenerEntry struct {
	fn Listener
	id uint64
}

// On registers a listener for one event name and returns its unsubscribe func.
func (s *Service) On(name EventName, l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListenerID++
	id := s.nextListenerID
	s.listeners[name] = append(s.listeners[name], listenerEntry{id: id, fn: l})

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		s.listeners[name] = removeListener(s.listeners[name], id)
	}
}

// OnAny registers a listener for every event.
func (s *Service) OnAny(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListenerID++
	id := s.nextListenerID
	s.anyListeners = append(s.anyListeners, listenerEntry{id: id, fn: l})

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		s.anyListeners = removeListener(s.anyListeners, id)
	}
}

func removeListener(list []listenerEntry, id uint64) []listenerEntry {
	out := make([]listenerEntry, 0, len(list))
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// emit calls listeners in registration order: named first, then catch-all.
func (s *Service) emit(name EventName, payload map[string]any) {
	s.listenersMu.RLock()
	named := append([]listenerEntry(nil), s.listeners[name]...)
	catchAll := append([]listenerEntry(nil), s.anyListeners...)
	s.listenersMu.RUnlock()

	if len(named) == 0 && len(catchAll) == 0 {
		return
	}

	ev := Event{Name: name, Payload: payload, Time: s.clock()}
	for _, e := range named {
		s.deliver(e.fn, ev)
	}
	for _, e := range catchAll {
		s.deliver(e.fn, ev)
	}
}

func (s *Service) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("storage event listener panicked",
				slog.String("event", string(ev.Name)),
				slog.Any("panic", r))
		}
	}()
	fn(ev)
}
