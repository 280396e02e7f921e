package workflow

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidTransition means the current state has no edge for the action.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorizedRole means the actor's role may not act in the current state.
	ErrUnauthorizedRole = errors.New("unauthorized role")
	// ErrTimeWindowClosed means the daily rate cutoff has passed.
	ErrTimeWindowClosed = errors.New("time window closed")
	ErrNotFound         = errors.New("request not found")
	// ErrConflict means a concurrent transition changed the status first.
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// ValidationError lists the payload fields that failed their checks, keyed
// by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func fieldError(field, rule string) error {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

// Code is the stable machine-readable name of err's category, "" for nil
// and "internal" for anything outside the taxonomy.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorizedRole):
		return "unauthorized_role"
	case errors.Is(err, ErrTimeWindowClosed):
		return "time_window_closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	}
	return "internal"
}
