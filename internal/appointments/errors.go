package appointments

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine errors for callers that map them to transport codes.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindRuntime         Kind = "runtime"
	KindTransient       Kind = "transient"
)

var (
	// ErrInvalidArgument is returned for malformed or unsupported input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrValidation is returned when a create payload fails field checks.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a new appointment overlaps an existing one.
	ErrConflict = errors.New("scheduling conflict")

	// ErrNotFound is returned when an appointment id is unknown.
	ErrNotFound = errors.New("appointment not found")

	// ErrIDSpaceExhausted is returned when no unused id could be generated.
	ErrIDSpaceExhausted = errors.New("unable to generate unique appointment id")

	// ErrTransient marks failures an interceptor may retry.
	ErrTransient = errors.New("transient failure")
)

var kindSentinels = map[Kind]error{
	KindInvalidArgument: ErrInvalidArgument,
	KindValidation:      ErrValidation,
	KindConflict:        ErrConflict,
	KindNotFound:        ErrNotFound,
	KindRuntime:         ErrIDSpaceExhausted,
	KindTransient:       ErrTransient,
}

// ConflictRef identifies an existing appointment a candidate collided with.
type ConflictRef struct {
	ID   string `json:"id"`
	Time string `json:"time"`
}

// Error is the structured error returned by every engine operation.
type Error struct {
	Kind      Kind
	Message   string
	Fields    []string
	Conflicts []ConflictRef
}

func (e *Error) Error() string {
	switch {
	case len(e.Fields) > 0:
		return e.Message + ": " + strings.Join(e.Fields, "; ")
	case len(e.Conflicts) > 0:
		parts := make([]string, 0, len(e.Conflicts))
		for _, c := range e.Conflicts {
			parts = append(parts, fmt.Sprintf("Conflict with appointment %s at %s", c.ID, c.Time))
		}
		return e.Message + ": " + strings.Join(parts, "; ")
	}
	return e.Message
}

// Is lets errors.Is match the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the engine kind of err, or "" for foreign errors.
// Transient wrapping wins over the kind of the wrapped error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTransient) {
		return KindTransient
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	for _, kind := range []Kind{KindInvalidArgument, KindValidation, KindConflict, KindNotFound, KindRuntime} {
		if errors.Is(err, kindSentinels[kind]) {
			return kind
		}
	}
	return ""
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func notFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: "Appointment not found: " + id}
}

func validationFailed(fields []string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

func conflictWith(records []Appointment) *Error {
	refs := make([]ConflictRef, 0, len(records))
	for _, r := range records {
		refs = append(refs, ConflictRef{ID: r.ID, Time: r.Time})
	}
	return &Error{Kind: KindConflict, Message: "Scheduling conflicts detected", Conflicts: refs}
}

// Transient wraps err so retry interceptors treat it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
