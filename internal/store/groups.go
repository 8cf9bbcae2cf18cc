package store

import (
	"context"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// GroupWithRole pairs a group with the viewing user's role in it.
type GroupWithRole struct {
	models.Group
	Role models.Role `json:"role"`
}

// CreateGroup makes the caller owner and administrator of a new group and
// remembers it as their current one. The invitation code is regenerated on
// the rare collision with an existing group's code.
func (s *Store) CreateGroup(ctx context.Context, userID int64, name string, description *string) (models.Group, error) {
	var g models.Group
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		var (
			id   int64
			code string
			err  error
		)
		for attempt := 0; ; attempt++ {
			code, err = invitationCode()
			if err != nil {
				return err
			}
			id, err = tx.Insert(ctx, `INSERT INTO groups (name, invitation_code, description, owner_id) VALUES (?, ?, ?, ?)`,
				name, code, description, userID)
			if err == nil {
				break
			}
			if !db.IsConflict(err) || attempt >= 4 {
				return err
			}
		}
		if _, err := tx.Insert(ctx, `INSERT INTO settings (group_id, group_name) VALUES (?, ?)`, id, name); err != nil {
			return err
		}
		if _, err := tx.Insert(ctx, `INSERT INTO memberships (user_id, group_id, role, active) VALUES (?, ?, ?, 1)`,
			userID, id, string(models.RoleAdmin)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET last_group_id = ? WHERE id = ?`, id, userID); err != nil {
			return err
		}
		g = models.Group{ID: id, Name: name, InvitationCode: code, Description: description, OwnerID: userID}
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// GroupsForUser lists the groups the user actively belongs to, earliest
// joined first.
func (s *Store) GroupsForUser(ctx context.Context, userID int64) ([]GroupWithRole, error) {
	rows, err := s.db.Query(ctx, `SELECT g.id, g.name, g.invitation_code, g.description, g.logo_url, g.owner_id, g.created_at, m.role
		FROM groups g JOIN memberships m ON m.group_id = g.id
		WHERE m.user_id = ? AND m.active = 1
		ORDER BY m.joined_at ASC, g.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []GroupWithRole{}
	for rows.Next() {
		var g GroupWithRole
		if err := rows.Scan(&g.ID, &g.Name, &g.InvitationCode, &g.Description, &g.LogoURL, &g.OwnerID, &g.CreatedAt, &g.Role); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GroupByID(ctx context.Context, id int64) (models.Group, error) {
	var g models.Group
	err := s.db.QueryRow(ctx, `SELECT id, name, invitation_code, description, logo_url, owner_id, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.InvitationCode, &g.Description, &g.LogoURL, &g.OwnerID, &g.CreatedAt)
	if errors.Is(err, db.ErrNoRows) {
		return models.Group{}, ErrNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// UpdateGroup renames the group and refreshes its descriptive fields. The
// settings row's display name is kept in sync.
func (s *Store) UpdateGroup(ctx context.Context, id int64, name string, description, logoURL *string) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		n, err := tx.Exec(ctx, `UPDATE groups SET name = ?, description = ?, logo_url = ? WHERE id = ?`,
			name, description, logoURL, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE settings SET group_name = ? WHERE group_id = ?`, name, id)
		return err
	})
}

// RenewCode replaces the invitation code, invalidating the old one.
func (s *Store) RenewCode(ctx context.Context, groupID int64) (string, error) {
	for attempt := 0; ; attempt++ {
		code, err := invitationCode()
		if err != nil {
			return "", err
		}
		n, err := s.db.Exec(ctx, `UPDATE groups SET invitation_code = ? WHERE id = ?`, code, groupID)
		if db.IsConflict(err) && attempt < 4 {
			continue
		}
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrNotFound
		}
		return code, nil
	}
}

// JoinGroup enrols the user into the group matching the invitation code.
// A previously deactivated membership is reactivated as a plain member.
func (s *Store) JoinGroup(ctx context.Context, userID int64, code string) (models.Group, error) {
	var g models.Group
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, name, invitation_code, description, logo_url, owner_id, created_at FROM groups WHERE invitation_code = ?`, code).
			Scan(&g.ID, &g.Name, &g.InvitationCode, &g.Description, &g.LogoURL, &g.OwnerID, &g.CreatedAt)
		if errors.Is(err, db.ErrNoRows) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}

		var active int64
		err = tx.QueryRow(ctx, `SELECT active FROM memberships WHERE user_id = ? AND group_id = ?`, userID, g.ID).Scan(&active)
		switch {
		case errors.Is(err, db.ErrNoRows):
			if _, err := tx.Insert(ctx, `INSERT INTO memberships (user_id, group_id, role, active) VALUES (?, ?, ?, 1)`,
				userID, g.ID, string(models.RoleUser)); err != nil {
				return err
			}
		case err != nil:
			return err
		case active == 1:
			return ErrAlreadyMember
		default:
			if _, err := tx.Exec(ctx, `UPDATE memberships SET active = 1, role = ? WHERE user_id = ? AND group_id = ?`,
				string(models.RoleUser), userID, g.ID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `UPDATE users SET last_group_id = ? WHERE id = ?`, g.ID, userID)
		return err
	})
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// SwitchContext remembers groupID as the user's current group. The caller
// must hold an active membership there.
func (s *Store) SwitchContext(ctx context.Context, userID, groupID int64) error {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE user_id = ? AND group_id = ? AND active = 1`,
		userID, groupID).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = s.db.Exec(ctx, `UPDATE users SET last_group_id = ? WHERE id = ?`, groupID, userID)
	return err
}

// DeleteGroup removes the group and everything scoped to it. Members whose
// current context pointed at it fall back to no group; their next login
// picks another membership.
func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		stmts := []string{
			`DELETE FROM suggestion_votes WHERE suggestion_id IN (SELECT id FROM suggestions WHERE group_id = ?)`,
			`DELETE FROM suggestions WHERE group_id = ?`,
			`DELETE FROM rehearsals WHERE group_id = ?`,
			`DELETE FROM performances WHERE group_id = ?`,
			`DELETE FROM settings WHERE group_id = ?`,
			`DELETE FROM memberships WHERE group_id = ?`,
			`UPDATE sessions SET group_id = NULL WHERE group_id = ?`,
			`UPDATE users SET last_group_id = NULL WHERE last_group_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt, groupID); err != nil {
				return err
			}
		}
		n, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = ?`, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
