package db

import "errors"

var (
	// ErrNoRows is returned by Row.Scan when the query matched nothing,
	// regardless of backend.
	ErrNoRows = errors.New("no rows in result set")
	// ErrConflict marks uniqueness and other integrity violations.
	ErrConflict = errors.New("integrity conflict")
	// ErrUnavailable marks transient storage failures: lock contention that
	// exhausted its retry budget, or an unreachable backend.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrParamCount is a programmer error: the number of placeholders in a
	// statement does not match the number of supplied parameters.
	ErrParamCount = errors.New("placeholder/parameter count mismatch")
)

func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
