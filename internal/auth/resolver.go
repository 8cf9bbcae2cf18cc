package auth

import (
	"context"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// Principal is an authenticated caller bound, when possible, to one group
// for the duration of a request.
type Principal struct {
	UserID     int64
	Username   string
	GlobalRole models.Role
	// GroupID is the effective group: the path override when the request
	// carried one, otherwise the session's binding when that binding still
	// maps to an active membership.
	GroupID *int64
	// Session is the resolved session, for handlers that mutate its
	// stored binding.
	Session models.Session
}

// Resolver turns a bearer token plus an optional path group id into a
// Principal.
type Resolver struct {
	sessions *Sessions
	db       db.Adapter
}

func NewResolver(sessions *Sessions, adapter db.Adapter) *Resolver {
	return &Resolver{sessions: sessions, db: adapter}
}

// Resolve authenticates the token and picks the effective group. A path
// override applies to this request only; the session's stored binding is
// never mutated here. A stored binding whose membership has been revoked
// is treated as absent.
func (r *Resolver) Resolve(ctx context.Context, token string, pathGroupID *int64) (Principal, error) {
	session, err := r.sessions.Resolve(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, err
	}

	var p Principal
	p.Session = session
	p.UserID = session.UserID
	err = r.db.QueryRow(ctx, `SELECT username, role FROM users WHERE id = ?`, session.UserID).
		Scan(&p.Username, &p.GlobalRole)
	if errors.Is(err, db.ErrNoRows) {
		// Session outlived its user; deny rather than allow.
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, err
	}

	switch {
	case pathGroupID != nil:
		p.GroupID = pathGroupID
	case session.GroupID != nil:
		active, err := r.membershipActive(ctx, session.UserID, *session.GroupID)
		if err != nil {
			return Principal{}, err
		}
		if active {
			p.GroupID = session.GroupID
		}
	}
	return p, nil
}

func (r *Resolver) membershipActive(ctx context.Context, userID, groupID int64) (bool, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE user_id = ? AND group_id = ? AND active = 1`,
		userID, groupID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
