package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrNotInitialized indicates an operation was attempted before Initialize
	ErrNotInitialized = errors.New("storage not initialized")

	// ErrNotFound indicates that document or metadata was not found
	ErrNotFound = errors.New("document not found")

	// ErrSerialization indicates malformed import data or corrupted stored bytes
	ErrSerialization = errors.New("serialization failure")

	// ErrBackend indicates an I/O or transactional failure of the engine
	ErrBackend = errors.New("backend failure")

	// ErrUnsupported indicates an optional capability the backend does not provide
	ErrUnsupported = errors.New("capability not supported")

	// ErrConflict indicates the stored version changed under the caller
	ErrConflict = errors.New("conflict")

	// ErrRetryExhausted indicates autosave gave up after the maximum attempt count
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrInvalidKey indicates the document key does not satisfy the key format
	ErrInvalidKey = errors.New("invalid key")

	// ErrTimeout indicates a backend call exceeded its deadline
	ErrTimeout = errors.New("operation timed out")
)

// Kind classifies storage failures so callers can branch without parsing text.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotInitialized
	KindNotFound
	KindSerialization
	KindBackend
	KindUnsupported
	KindConflict
	KindRetryExhausted
	KindInvalidKey
	KindTimeout
)

var kindSentinels = map[Kind]error{
	KindNotInitialized: ErrNotInitialized,
	KindNotFound:       ErrNotFound,
	KindSerialization:  ErrSerialization,
	KindBackend:        ErrBackend,
	KindUnsupported:    ErrUnsupported,
	KindConflict:       ErrConflict,
	KindRetryExhausted: ErrRetryExhausted,
	KindInvalidKey:     ErrInvalidKey,
	KindTimeout:        ErrTimeout,
}

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "not_initialized"
	case KindNotFound:
		return "not_found"
	case KindSerialization:
		return "serialization"
	case KindBackend:
		return "backend"
	case KindUnsupported:
		return "unsupported"
	case KindConflict:
		return "conflict"
	case KindRetryExhausted:
		return "retry_exhausted"
	case KindInvalidKey:
		return "invalid_key"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a structured storage failure carrying the operation and key.
// errors.Is matches the sentinel of its Kind.
type Error struct {
	Err  error
	Op   string
	Key  string
	Kind Kind
}

// NewError wraps err with kind, operation and key.
func NewError(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.Err != nil && !errors.Is(e.Err, kindSentinels[e.Kind]) {
		msg = msg + ": " + e.Err.Error()
	}

	switch {
	case e.Op != "" && e.Key != "":
		return fmt.Sprintf("%s %q: %s", e.Op, e.Key, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// IsRetryable reports whether an autosave retry may succeed.
// Not-found, invalid key, serialization and unsupported are permanent.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindBackend, KindTimeout, KindUnknown:
		return err != nil
	default:
		return false
	}
}

// NotFound returns a not-found error for op on key.
func NotFound(op, key string) error {
	return NewError(KindNotFound, op, key, nil)
}

// NotInitialized returns a not-initialized error for op.
func NotInitialized(op string) error {
	return NewError(KindNotInitialized, op, "", nil)
}

// BackendError wraps an engine failure.
func BackendError(op, key string, err error) error {
	return NewError(KindBackend, op, key, err)
}

// SerializationError wraps an encoding or decoding failure.
func SerializationError(op, key string, err error) error {
	return NewError(KindSerialization, op, key, err)
}

// InvalidKey wraps a key validation failure.
func InvalidKey(op, key string, err error) error {
	return NewError(KindInvalidKey, op, key, err)
}

// Unsupported returns a capability-unsupported error.
func Unsupported(op string, capability Capability) error {
	return NewError(KindUnsupported, op, "", fmt.Errorf("backend does not provide %s", capability))
}
