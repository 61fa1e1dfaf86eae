// Package autosave tracks dirty documents and writes them through a storage
// service with debounce, a maximum dirty interval and bounded retries.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/storage"
	"github.com/iudanet/storysync/internal/validation"
)

//go:generate moq -out saver_mock.go . Saver

// Saver is the part of the storage service autosave writes through.
// *store.Service implements it.
type Saver interface {
	Save(ctx context.Context, key string, doc models.Document, meta *models.Metadata) (*models.Metadata, error)
	LoadFresh(ctx context.Context, key string) (models.Document, error)
	GetMetadata(ctx context.Context, key string) (*models.Metadata, error)
}

// State is the autosave state of a key
type State string

const (
	StateIdle    State = "idle"    // не отслеживается
	StatePending State = "pending" // есть несохраненные изменения
	StateSaving  State = "saving"  // запись в процессе
	StateSaved   State = "saved"   // последняя запись успешна
	StateError   State = "error"   // исчерпаны попытки, нужна принудительная запись
)

const (
	DefaultDebounce    = 2 * time.Second
	DefaultMaxInterval = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultTick        = 500 * time.Millisecond
)

// Options configures a Manager. Zero values pick the defaults.
type Options struct {
	Logger  *slog.Logger
	Clock   func() time.Time
	OnError func(key string, err error)

	// OnConflict decides how a detected conflict is resolved.
	// Nil keeps the local copy.
	OnConflict ConflictFunc

	Debounce    time.Duration
	MaxInterval time.Duration
	MaxRetries  int

	// ConflictCheck enables the pre-save conflict check for keys with a
	// recorded base version.
	ConflictCheck bool
}

// Info describes a tracked key
type Info struct {
	FirstDirty   time.Time
	LastModified time.Time
	LastError    error
	State        State
	Retries      int
}

type entry struct {
	firstDirty   time.Time
	lastModified time.Time
	lastErr      error
	doc          models.Document
	state        State
	retries      int
	gen          uint64
}

// base is the stored version a local copy was derived from
type base struct {
	updatedAt   time.Time
	fingerprint string
}

// Manager schedules debounced saves. Scheduling is a polled tick: call
// Process periodically or run Run in a goroutine.
type Manager struct {
	saver      Saver
	logger     *slog.Logger
	clock      func() time.Time
	onError    func(key string, err error)
	onConflict ConflictFunc

	entries map[string]*entry
	settled map[string]State
	bases   map[string]base

	debounce      time.Duration
	maxInterval   time.Duration
	maxRetries    int
	conflictCheck bool
	paused        bool

	mu sync.Mutex
}

// New creates a Manager writing through saver
func New(saver Saver, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	return &Manager{
		saver:         saver,
		logger:        opts.Logger,
		clock:         opts.Clock,
		onError:       opts.OnError,
		onConflict:    opts.OnConflict,
		entries:       make(map[string]*entry),
		settled:       make(map[string]State),
		bases:         make(map[string]base),
		debounce:      opts.Debounce,
		maxInterval:   opts.MaxInterval,
		maxRetries:    opts.MaxRetries,
		conflictCheck: opts.ConflictCheck,
	}
}

// MarkDirty records the latest content of key. The save is deferred until
// no edit arrives for the debounce window, or the key has been dirty for
// MaxInterval. Entries in the error state keep tracking content but are not
// retried until a forced save.
func (m *Manager) MarkDirty(key string, doc models.Document) error {
	if err := validation.ValidateInternalKey(key); err != nil {
		return storage.InvalidKey("mark_dirty", key, err)
	}
	if doc == nil {
		return storage.SerializationError("mark_dirty", key, errors.New("document cannot be nil"))
	}

	now := m.clock()
	clone := doc.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{firstDirty: now, state: StatePending}
		m.entries[key] = e
		delete(m.settled, key)
	}
	e.doc = clone
	e.lastModified = now
	e.gen++
	return nil
}

// Track records doc as the base version of key, as read from storage at
// updatedAt. The conflict check compares the stored version against it.
func (m *Manager) Track(key string, doc models.Document, updatedAt time.Time) error {
	fp, err := Fingerprint(doc)
	if err != nil {
		return storage.SerializationError("track", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bases[key] = base{updatedAt: updatedAt, fingerprint: fp}
	return nil
}

// Process saves every pending key whose debounce window or maximum dirty
// interval has elapsed. Nothing is saved while paused. Returns the number of
// save attempts.
func (m *Manager) Process(ctx context.Context) int {
	due := m.dueKeys(m.clock())
	for _, key := range due {
		// Ошибки уже залогированы и учтены в retries
		_ = m.SaveNow(ctx, key, false)
	}
	return len(due)
}

func (m *Manager) dueKeys(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil
	}

	var due []string
	for key, e := range m.entries {
		if e.state != StatePending {
			continue
		}
		if now.Sub(e.lastModified) >= m.debounce || now.Sub(e.firstDirty) >= m.maxInterval {
			due = append(due, key)
		}
	}
	sort.Strings(due)
	return due
}

// Run calls Process on every tick until ctx is done
func (m *Manager) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Process(ctx)
		}
	}
}

// SaveNow writes key immediately. A key that is not dirty is a no-op.
// A failure leaves the key dirty; after MaxRetries consecutive failures the
// key moves to the error state and SaveNow returns ErrRetryExhausted. Keys in
// the error state are only written again with force, which also resets the
// retry counter.
func (m *Manager) SaveNow(ctx context.Context, key string, force bool) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok || e.state == StateSaving {
		m.mu.Unlock()
		return nil
	}
	if e.state == StateError && !force {
		err := e.lastErr
		m.mu.Unlock()
		return storage.NewError(storage.KindRetryExhausted, "autosave", key, err)
	}
	if force {
		e.retries = 0
	}
	e.state = StateSaving
	doc, gen := e.doc, e.gen
	b, hasBase := m.bases[key]
	m.mu.Unlock()

	// Запись выполняется без блокировки: MarkDirty не ждет бэкенд
	saved, err := m.write(ctx, key, doc, b, hasBase)
	return m.finish(key, gen, saved, err)
}

func (m *Manager) write(ctx context.Context, key string, doc models.Document, b base, hasBase bool) (base, error) {
	toSave := doc
	if m.conflictCheck && hasBase {
		conflict, err := m.detect(ctx, key, doc, b)
		if err != nil {
			return base{}, fmt.Errorf("conflict check: %w", err)
		}
		if conflict != nil {
			res := m.resolve(conflict)
			switch res.kind {
			case keepRemote:
				fp, err := Fingerprint(conflict.Remote)
				if err != nil {
					return base{}, err
				}
				return base{updatedAt: conflict.RemoteUpdatedAt, fingerprint: fp}, nil
			case merged:
				toSave = res.doc
			}
		}
	}

	meta, err := m.saver.Save(ctx, key, toSave, nil)
	if err != nil {
		return base{}, err
	}

	fp, err := Fingerprint(toSave)
	if err != nil {
		return base{}, err
	}
	return base{updatedAt: meta.UpdatedAt, fingerprint: fp}, nil
}

func (m *Manager) finish(key string, gen uint64, saved base, err error) error {
	m.mu.Lock()
	e, tracked := m.entries[key]

	if err != nil {
		if !tracked {
			m.mu.Unlock()
			return err
		}

		e.retries++
		e.lastErr = err
		if e.retries >= m.maxRetries {
			e.state = StateError
			retries := e.retries
			m.mu.Unlock()

			m.logger.Error("autosave gave up", "key", key, "retries", retries, "error", err)
			if m.onError != nil {
				m.onError(key, err)
			}
			return storage.NewError(storage.KindRetryExhausted, "autosave", key, err)
		}

		e.state = StatePending
		retries := e.retries
		m.mu.Unlock()

		m.logger.Warn("autosave failed, will retry", "key", key, "retries", retries, "error", err)
		return err
	}

	m.bases[key] = saved
	switch {
	case !tracked:
		m.settled[key] = StateSaved
	case e.gen == gen:
		delete(m.entries, key)
		m.settled[key] = StateSaved
	default:
		// Документ изменился во время записи: остается грязным
		e.state = StatePending
		e.retries = 0
		e.lastErr = nil
	}
	m.mu.Unlock()

	m.logger.Debug("autosaved", "key", key)
	return nil
}

// SaveAll writes every pending key, ignoring pause and debounce.
// Keys in the error state are skipped.
func (m *Manager) SaveAll(ctx context.Context) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries))
	for key, e := range m.entries {
		if e.state == StatePending {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := m.SaveNow(ctx, key, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pause stops scheduling. Dirty tracking continues.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume restarts scheduling and re-arms the debounce window of every dirty key
func (m *Manager) Resume() {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.paused = false
	for _, e := range m.entries {
		e.lastModified = now
	}
}

// Paused reports whether scheduling is paused
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Status returns the state of key
func (m *Manager) Status(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		return e.state
	}
	if st, ok := m.settled[key]; ok {
		return st
	}
	return StateIdle
}

// Info returns details of a dirty key
func (m *Manager) Info(key string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Info{}, false
	}
	return Info{
		FirstDirty:   e.firstDirty,
		LastModified: e.lastModified,
		LastError:    e.lastErr,
		State:        e.state,
		Retries:      e.retries,
	}, true
}

// DirtyKeys returns the sorted keys with unsaved changes, error state included
func (m *Manager) DirtyKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IsDirty reports whether key has unsaved changes
func (m *Manager) IsDirty(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Discard drops unsaved changes of key. A save already in flight completes.
func (m *Manager) Discard(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	delete(m.settled, key)
}
