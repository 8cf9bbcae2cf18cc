package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

func (s *Store) Rehearsals(ctx context.Context, groupID int64) ([]models.Rehearsal, error) {
	rows, err := s.db.Query(ctx, `SELECT r.id, r.group_id, r.title, r.author, r.youtube, r.spotify, r.version_of, r.levels_json, r.notes_json, r.mastered, r.creator_id, u.username, r.created_at
		FROM rehearsals r JOIN users u ON u.id = r.creator_id
		WHERE r.group_id = ?
		ORDER BY r.created_at DESC, r.id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Rehearsal{}
	for rows.Next() {
		r, err := scanRehearsal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RehearsalByID(ctx context.Context, groupID, id int64) (models.Rehearsal, error) {
	row := s.db.QueryRow(ctx, `SELECT r.id, r.group_id, r.title, r.author, r.youtube, r.spotify, r.version_of, r.levels_json, r.notes_json, r.mastered, r.creator_id, u.username, r.created_at
		FROM rehearsals r JOIN users u ON u.id = r.creator_id
		WHERE r.id = ? AND r.group_id = ?`, id, groupID)
	r, err := scanRehearsal(row)
	if errors.Is(err, db.ErrNoRows) {
		return models.Rehearsal{}, ErrNotFound
	}
	if err != nil {
		return models.Rehearsal{}, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRehearsal(sc scanner) (models.Rehearsal, error) {
	var (
		r             models.Rehearsal
		levels, notes string
		mastered      int64
	)
	err := sc.Scan(&r.ID, &r.GroupID, &r.Title, &r.Author, &r.YouTube, &r.Spotify, &r.VersionOf,
		&levels, &notes, &mastered, &r.CreatorID, &r.Creator, &r.CreatedAt)
	if err != nil {
		return models.Rehearsal{}, err
	}
	if err := json.Unmarshal([]byte(levels), &r.Levels); err != nil {
		return models.Rehearsal{}, err
	}
	if err := json.Unmarshal([]byte(notes), &r.Notes); err != nil {
		return models.Rehearsal{}, err
	}
	r.Mastered = mastered != 0
	return r, nil
}

func (s *Store) CreateRehearsal(ctx context.Context, groupID, creatorID int64, title string, author, youtube, spotify, versionOf *string) (models.Rehearsal, error) {
	id, err := s.db.Insert(ctx, `INSERT INTO rehearsals (group_id, title, author, youtube, spotify, version_of, creator_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		groupID, title, author, youtube, spotify, versionOf, creatorID)
	if err != nil {
		return models.Rehearsal{}, err
	}
	return s.RehearsalByID(ctx, groupID, id)
}

func (s *Store) UpdateRehearsal(ctx context.Context, groupID, id int64, title string, author, youtube, spotify, versionOf *string) error {
	n, err := s.db.Exec(ctx, `UPDATE rehearsals SET title = ?, author = ?, youtube = ?, spotify = ?, version_of = ? WHERE id = ? AND group_id = ?`,
		title, author, youtube, spotify, versionOf, id, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRehearsal drops the song and scrubs its id from every
// performance's set list in the same transaction.
func (s *Store) DeleteRehearsal(ctx context.Context, groupID, id int64) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		type patch struct {
			perfID int64
			songs  string
		}
		var patches []patch
		rows, err := tx.Query(ctx, `SELECT id, songs_json FROM performances WHERE group_id = ?`, groupID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var perfID int64
			var raw string
			if err := rows.Scan(&perfID, &raw); err != nil {
				rows.Close()
				return err
			}
			var songs []int64
			if err := json.Unmarshal([]byte(raw), &songs); err != nil {
				rows.Close()
				return err
			}
			kept := make([]int64, 0, len(songs))
			for _, sid := range songs {
				if sid != id {
					kept = append(kept, sid)
				}
			}
			if len(kept) == len(songs) {
				continue
			}
			b, err := json.Marshal(kept)
			if err != nil {
				rows.Close()
				return err
			}
			patches = append(patches, patch{perfID: perfID, songs: string(b)})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, p := range patches {
			if _, err := tx.Exec(ctx, `UPDATE performances SET songs_json = ? WHERE id = ?`, p.songs, p.perfID); err != nil {
				return err
			}
		}
		n, err := tx.Exec(ctx, `DELETE FROM rehearsals WHERE id = ? AND group_id = ?`, id, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetLevel records one member's practice level on the song. The per-user
// map is rewritten inside a transaction so concurrent members don't
// clobber each other's entries.
func (s *Store) SetLevel(ctx context.Context, groupID, id int64, username string, level int) error {
	return s.patchJSON(ctx, groupID, id, "levels_json", func(raw []byte) ([]byte, error) {
		m := map[string]int{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		m[username] = level
		return json.Marshal(m)
	})
}

// SetNote records one member's note on the song; an empty note removes it.
func (s *Store) SetNote(ctx context.Context, groupID, id int64, username, note string) error {
	return s.patchJSON(ctx, groupID, id, "notes_json", func(raw []byte) ([]byte, error) {
		m := map[string]string{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		if note == "" {
			delete(m, username)
		} else {
			m[username] = note
		}
		return json.Marshal(m)
	})
}

func (s *Store) patchJSON(ctx context.Context, groupID, id int64, column string, patch func([]byte) ([]byte, error)) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		var raw string
		err := tx.QueryRow(ctx, `SELECT `+column+` FROM rehearsals WHERE id = ? AND group_id = ?`, id, groupID).Scan(&raw)
		if errors.Is(err, db.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := patch([]byte(raw))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE rehearsals SET `+column+` = ? WHERE id = ?`, string(next), id)
		return err
	})
}

func (s *Store) SetMastered(ctx context.Context, groupID, id int64, mastered bool) error {
	v := 0
	if mastered {
		v = 1
	}
	n, err := s.db.Exec(ctx, `UPDATE rehearsals SET mastered = ? WHERE id = ? AND group_id = ?`, v, id, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
