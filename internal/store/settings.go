package store

import (
	"context"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

func (s *Store) Settings(ctx context.Context, groupID int64) (models.Settings, error) {
	var (
		st       models.Settings
		darkMode int64
	)
	err := s.db.QueryRow(ctx, `SELECT group_id, group_name, dark_mode, template FROM settings WHERE group_id = ?`, groupID).
		Scan(&st.GroupID, &st.GroupName, &darkMode, &st.Template)
	if errors.Is(err, db.ErrNoRows) {
		return models.Settings{}, ErrNotFound
	}
	if err != nil {
		return models.Settings{}, err
	}
	st.DarkMode = darkMode != 0
	return st, nil
}

// UpdateSettings stores the group's display preferences and keeps the
// group row's name in step with the settings copy.
func (s *Store) UpdateSettings(ctx context.Context, groupID int64, st models.Settings) error {
	darkMode := 0
	if st.DarkMode {
		darkMode = 1
	}
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		n, err := tx.Exec(ctx, `UPDATE settings SET group_name = ?, dark_mode = ?, template = ? WHERE group_id = ?`,
			st.GroupName, darkMode, st.Template, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE groups SET name = ? WHERE id = ?`, st.GroupName, groupID)
		return err
	})
}
