package store

import (
	"context"
	"errors"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// Register creates a new account and enrols it into the default group.
// Usernames are case-insensitive; the stored form is lowercase. The first
// registrant creates the default group and administers it; later
// registrants join it as plain members.
func (s *Store) Register(ctx context.Context, username, password string) (models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var u models.User
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		salt, hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		id, err := tx.Insert(ctx, `INSERT INTO users (username, salt, password_hash, role) VALUES (?, ?, ?, ?)`,
			username, salt, hash, string(models.RoleUser))
		if db.IsConflict(err) {
			return ErrUsernameTaken
		}
		if err != nil {
			return err
		}

		groupID, err := s.ensureDefaultGroup(ctx, tx, id)
		if err != nil {
			return err
		}
		var members int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE group_id = ? AND active = 1`, groupID).Scan(&members); err != nil {
			return err
		}
		role := models.RoleUser
		if members == 0 {
			role = models.RoleAdmin
		}
		if _, err := tx.Insert(ctx, `INSERT INTO memberships (user_id, group_id, role, active) VALUES (?, ?, ?, 1)`,
			id, groupID, string(role)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET last_group_id = ? WHERE id = ?`, groupID, id); err != nil {
			return err
		}
		u = models.User{ID: id, Username: username, GlobalRole: models.RoleUser, LastGroupID: &groupID}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

// ensureDefaultGroup returns the default group's id, creating the group,
// its settings row and nothing else when the installation has none yet.
func (s *Store) ensureDefaultGroup(ctx context.Context, tx db.Tx, ownerID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM groups ORDER BY id ASC LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, db.ErrNoRows) {
		return 0, err
	}
	code, err := invitationCode()
	if err != nil {
		return 0, err
	}
	id, err = tx.Insert(ctx, `INSERT INTO groups (name, invitation_code, owner_id) VALUES (?, ?, ?)`,
		DefaultGroupName, code, ownerID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Insert(ctx, `INSERT INTO settings (group_id, group_name) VALUES (?, ?)`, id, DefaultGroupName); err != nil {
		return 0, err
	}
	return id, nil
}

// Authenticate checks the credentials and returns the user with a usable
// group binding: the remembered group when its membership is still active,
// otherwise the earliest remaining one, otherwise none.
func (s *Store) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var (
		u          models.User
		salt, hash []byte
	)
	err := s.db.QueryRow(ctx, `SELECT id, username, salt, password_hash, role, last_group_id FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &salt, &hash, &u.GlobalRole, &u.LastGroupID)
	if errors.Is(err, db.ErrNoRows) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if !auth.VerifyPassword(password, salt, hash) {
		return models.User{}, ErrInvalidCredentials
	}

	bound, err := s.usableGroup(ctx, u.ID, u.LastGroupID)
	if err != nil {
		return models.User{}, err
	}
	if !sameGroup(bound, u.LastGroupID) {
		if _, err := s.db.Exec(ctx, `UPDATE users SET last_group_id = ? WHERE id = ?`, bound, u.ID); err != nil {
			return models.User{}, err
		}
	}
	u.LastGroupID = bound
	return u, nil
}

// usableGroup validates a remembered group against current memberships and
// falls back to the user's earliest active one.
func (s *Store) usableGroup(ctx context.Context, userID int64, remembered *int64) (*int64, error) {
	if remembered != nil {
		var n int
		err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE user_id = ? AND group_id = ? AND active = 1`,
			userID, *remembered).Scan(&n)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return remembered, nil
		}
	}
	var id int64
	err := s.db.QueryRow(ctx, `SELECT group_id FROM memberships WHERE user_id = ? AND active = 1 ORDER BY joined_at ASC, group_id ASC LIMIT 1`,
		userID).Scan(&id)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func sameGroup(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `SELECT id, username, role, last_group_id FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.GlobalRole, &u.LastGroupID)
	if errors.Is(err, db.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Users lists every account on the installation.
func (s *Store) Users(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, username, role, last_group_id FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.GlobalRole, &u.LastGroupID); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUserRole sets an account's global role and mirrors it onto the
// account's memberships, since installation admins act across groups.
func (s *Store) UpdateUserRole(ctx context.Context, userID int64, role models.Role) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		n, err := tx.Exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE memberships SET role = ? WHERE user_id = ?`, string(role), userID)
		return err
	})
}

// UpdatePassword rotates the credential after re-verifying the current one.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, current, next string) error {
	var salt, hash []byte
	err := s.db.QueryRow(ctx, `SELECT salt, password_hash FROM users WHERE id = ?`, userID).Scan(&salt, &hash)
	if errors.Is(err, db.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(current, salt, hash) {
		return ErrInvalidCredentials
	}
	newSalt, newHash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `UPDATE users SET salt = ?, password_hash = ? WHERE id = ?`, newSalt, newHash, userID)
	return err
}

// DeleteAccount removes the user together with their memberships, sessions,
// votes and created resources, and detaches their audit entries. An account
// that still owns groups is refused; ownership must be handed over or the
// groups deleted first.
func (s *Store) DeleteAccount(ctx context.Context, userID int64) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		var owned int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM groups WHERE owner_id = ?`, userID).Scan(&owned); err != nil {
			return err
		}
		if owned > 0 {
			return ErrOwnsGroups
		}
		if _, err := tx.Exec(ctx, `UPDATE suggestions SET likes = likes - 1 WHERE id IN (SELECT suggestion_id FROM suggestion_votes WHERE user_id = ?)`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM suggestion_votes WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM suggestion_votes WHERE suggestion_id IN (SELECT id FROM suggestions WHERE creator_id = ?)`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM suggestions WHERE creator_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM rehearsals WHERE creator_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM performances WHERE creator_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM memberships WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE logs SET user_id = NULL WHERE user_id = ?`, userID); err != nil {
			return err
		}
		n, err := tx.Exec(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
