package auth

import (
	"context"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// Gate answers "may this principal act with at least this role in this
// group". All role checks in the API flow through it.
type Gate struct {
	db db.Adapter
}

func NewGate(adapter db.Adapter) *Gate {
	return &Gate{db: adapter}
}

// MembershipRole returns the caller's active role in the group, or
// ErrNoGroup when no active membership exists.
func (g *Gate) MembershipRole(ctx context.Context, userID, groupID int64) (models.Role, error) {
	var role models.Role
	err := g.db.QueryRow(ctx, `SELECT role FROM memberships WHERE user_id = ? AND group_id = ? AND active = 1`,
		userID, groupID).Scan(&role)
	if errors.Is(err, db.ErrNoRows) {
		return "", ErrNoGroup
	}
	if err != nil {
		return "", err
	}
	if !role.Valid() {
		// Unknown role values deny rather than allow.
		return "", ErrInsufficientRole
	}
	return role, nil
}

// RequireRole checks that the principal holds an active membership in
// groupID with at least min, and returns the actual role held.
func (g *Gate) RequireRole(ctx context.Context, p Principal, groupID int64, min models.Role) (models.Role, error) {
	role, err := g.MembershipRole(ctx, p.UserID, groupID)
	if err != nil {
		return "", err
	}
	if !role.AtLeast(min) {
		return "", ErrInsufficientRole
	}
	return role, nil
}

// RequireGroup resolves the principal's effective group and checks min
// against it. Principals without a group binding get ErrNoGroup.
func (g *Gate) RequireGroup(ctx context.Context, p Principal, min models.Role) (int64, models.Role, error) {
	if p.GroupID == nil {
		return 0, "", ErrNoGroup
	}
	role, err := g.RequireRole(ctx, p, *p.GroupID, min)
	if err != nil {
		return 0, "", err
	}
	return *p.GroupID, role, nil
}
