package auth

import "errors"

var (
	// ErrUnauthenticated: token absent, invalid, or expired.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNoGroup: identified caller with no resolvable or active group for
	// the requested operation.
	ErrNoGroup = errors.New("no active group")
	// ErrInsufficientRole: membership role below the operation's minimum.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrSessionNotFound is internal to the session store; callers see
	// ErrUnauthenticated.
	ErrSessionNotFound = errors.New("session not found")
)
