package store

import (
	"context"
	"errors"
	"time"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// Member is a membership row joined with the account behind it, as shown
// in a group's member list.
type Member struct {
	ID       int64       `json:"id"`
	UserID   int64       `json:"userId"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	Nickname *string     `json:"nickname,omitempty"`
	JoinedAt time.Time   `json:"joinedAt"`
}

func (s *Store) Members(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := s.db.Query(ctx, `SELECT m.id, m.user_id, u.username, m.role, m.nickname, m.joined_at
		FROM memberships m JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ? AND m.active = 1
		ORDER BY m.joined_at ASC, m.id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Role, &m.Nickname, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember enrols an existing account into a group directly, bypassing
// the invitation code. An inactive membership is reactivated with the
// given role; an active one is a conflict.
func (s *Store) AddMember(ctx context.Context, groupID, userID int64, role models.Role, nickname *string) (Member, error) {
	var m Member
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		var username string
		err := tx.QueryRow(ctx, `SELECT username FROM users WHERE id = ?`, userID).Scan(&username)
		if errors.Is(err, db.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var active int64
		err = tx.QueryRow(ctx, `SELECT active FROM memberships WHERE user_id = ? AND group_id = ?`, userID, groupID).Scan(&active)
		switch {
		case errors.Is(err, db.ErrNoRows):
			if _, err := tx.Insert(ctx, `INSERT INTO memberships (user_id, group_id, role, nickname, active) VALUES (?, ?, ?, ?, 1)`,
				userID, groupID, string(role), nickname); err != nil {
				return err
			}
		case err != nil:
			return err
		case active == 1:
			return ErrAlreadyMember
		default:
			if _, err := tx.Exec(ctx, `UPDATE memberships SET active = 1, role = ?, nickname = ? WHERE user_id = ? AND group_id = ?`,
				string(role), nickname, userID, groupID); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `SELECT m.id, m.user_id, u.username, m.role, m.nickname, m.joined_at
			FROM memberships m JOIN users u ON u.id = m.user_id
			WHERE m.user_id = ? AND m.group_id = ?`, userID, groupID).
			Scan(&m.ID, &m.UserID, &m.Username, &m.Role, &m.Nickname, &m.JoinedAt)
	})
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// UpdateMembership changes a member's role or nickname. Demoting the last
// remaining admin is refused so the group never ends up unadministered.
func (s *Store) UpdateMembership(ctx context.Context, groupID, userID int64, role models.Role, nickname *string) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		current, err := activeRole(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if current == models.RoleAdmin && role != models.RoleAdmin {
			if err := requireAnotherAdmin(ctx, tx, groupID, userID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `UPDATE memberships SET role = ?, nickname = ? WHERE user_id = ? AND group_id = ? AND active = 1`,
			string(role), nickname, userID, groupID)
		return err
	})
}

// RemoveMember deactivates a membership, whether through leaving or being
// removed. The last admin cannot go. Any context still pointing at the
// group is repointed to another membership of the departing user, or
// cleared, so no later request resolves against a group they left.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID int64) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		current, err := activeRole(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if current == models.RoleAdmin {
			if err := requireAnotherAdmin(ctx, tx, groupID, userID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE memberships SET active = 0 WHERE user_id = ? AND group_id = ?`, userID, groupID); err != nil {
			return err
		}

		var next *int64
		var id int64
		err = tx.QueryRow(ctx, `SELECT group_id FROM memberships WHERE user_id = ? AND active = 1 ORDER BY joined_at ASC, group_id ASC LIMIT 1`, userID).Scan(&id)
		switch {
		case errors.Is(err, db.ErrNoRows):
		case err != nil:
			return err
		default:
			next = &id
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET last_group_id = ? WHERE id = ? AND last_group_id = ?`, next, userID, groupID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE sessions SET group_id = ? WHERE user_id = ? AND group_id = ?`, next, userID, groupID)
		return err
	})
}

func activeRole(ctx context.Context, q db.Querier, groupID, userID int64) (models.Role, error) {
	var role models.Role
	err := q.QueryRow(ctx, `SELECT role FROM memberships WHERE user_id = ? AND group_id = ? AND active = 1`, userID, groupID).Scan(&role)
	if errors.Is(err, db.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func requireAnotherAdmin(ctx context.Context, q db.Querier, groupID, userID int64) error {
	var others int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE group_id = ? AND role = ? AND active = 1 AND user_id <> ?`,
		groupID, string(models.RoleAdmin), userID).Scan(&others)
	if err != nil {
		return err
	}
	if others == 0 {
		return ErrLastAdmin
	}
	return nil
}
