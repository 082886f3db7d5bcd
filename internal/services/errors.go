package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/inkwell-blog/inkwell/internal/store"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrForbidden is returned when the identity does not own the record it
	// tries to change.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials is returned for any failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError collects per-field problems with submitted input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field unless the field already has a message.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// Has reports whether field already failed.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func newValidationError(field, msg string) *ValidationError {
	verr := &ValidationError{}
	verr.Add(field, msg)
	return verr
}

// AsValidationError unwraps err into a ValidationError when it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
