package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a unique constraint.
var ErrConflict = errors.New("conflict")

const (
	foreignKeyViolation pq.ErrorCode = "23503"
	uniqueViolation     pq.ErrorCode = "23505"
)

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		return ErrConflict
	case foreignKeyViolation:
		return ErrNotFound
	default:
		return err
	}
}
