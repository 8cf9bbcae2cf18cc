package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

func (s *Store) Performances(ctx context.Context, groupID int64) ([]models.Performance, error) {
	rows, err := s.db.Query(ctx, `SELECT id, group_id, name, date, location, songs_json, creator_id, created_at
		FROM performances WHERE group_id = ?
		ORDER BY date ASC, id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Performance{}
	for rows.Next() {
		p, err := scanPerformance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PerformanceByID(ctx context.Context, groupID, id int64) (models.Performance, error) {
	row := s.db.QueryRow(ctx, `SELECT id, group_id, name, date, location, songs_json, creator_id, created_at
		FROM performances WHERE id = ? AND group_id = ?`, id, groupID)
	p, err := scanPerformance(row)
	if errors.Is(err, db.ErrNoRows) {
		return models.Performance{}, ErrNotFound
	}
	if err != nil {
		return models.Performance{}, err
	}
	return p, nil
}

func scanPerformance(sc scanner) (models.Performance, error) {
	var (
		p     models.Performance
		songs string
	)
	err := sc.Scan(&p.ID, &p.GroupID, &p.Name, &p.Date, &p.Location, &songs, &p.CreatorID, &p.CreatedAt)
	if err != nil {
		return models.Performance{}, err
	}
	if err := json.Unmarshal([]byte(songs), &p.Songs); err != nil {
		return models.Performance{}, err
	}
	return p, nil
}

func (s *Store) CreatePerformance(ctx context.Context, groupID, creatorID int64, name, date string, location *string, songs []int64) (models.Performance, error) {
	raw, err := marshalSongs(songs)
	if err != nil {
		return models.Performance{}, err
	}
	id, err := s.db.Insert(ctx, `INSERT INTO performances (group_id, name, date, location, songs_json, creator_id) VALUES (?, ?, ?, ?, ?, ?)`,
		groupID, name, date, location, raw, creatorID)
	if err != nil {
		return models.Performance{}, err
	}
	return s.PerformanceByID(ctx, groupID, id)
}

func (s *Store) UpdatePerformance(ctx context.Context, groupID, id int64, name, date string, location *string, songs []int64) error {
	raw, err := marshalSongs(songs)
	if err != nil {
		return err
	}
	n, err := s.db.Exec(ctx, `UPDATE performances SET name = ?, date = ?, location = ?, songs_json = ? WHERE id = ? AND group_id = ?`,
		name, date, location, raw, id, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePerformance(ctx context.Context, groupID, id int64) error {
	n, err := s.db.Exec(ctx, `DELETE FROM performances WHERE id = ? AND group_id = ?`, id, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalSongs(songs []int64) (string, error) {
	if songs == nil {
		songs = []int64{}
	}
	raw, err := json.Marshal(songs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
