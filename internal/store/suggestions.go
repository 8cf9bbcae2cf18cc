package store

import (
	"context"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

func (s *Store) Suggestions(ctx context.Context, groupID int64) ([]models.Suggestion, error) {
	rows, err := s.db.Query(ctx, `SELECT s.id, s.group_id, s.title, s.author, s.youtube, s.version_of, s.likes, s.creator_id, u.username, s.created_at
		FROM suggestions s JOIN users u ON u.id = s.creator_id
		WHERE s.group_id = ?
		ORDER BY s.created_at DESC, s.id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Suggestion{}
	for rows.Next() {
		var sg models.Suggestion
		if err := rows.Scan(&sg.ID, &sg.GroupID, &sg.Title, &sg.Author, &sg.YouTube, &sg.VersionOf, &sg.Likes, &sg.CreatorID, &sg.Creator, &sg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *Store) SuggestionByID(ctx context.Context, groupID, id int64) (models.Suggestion, error) {
	var sg models.Suggestion
	err := s.db.QueryRow(ctx, `SELECT s.id, s.group_id, s.title, s.author, s.youtube, s.version_of, s.likes, s.creator_id, u.username, s.created_at
		FROM suggestions s JOIN users u ON u.id = s.creator_id
		WHERE s.id = ? AND s.group_id = ?`, id, groupID).
		Scan(&sg.ID, &sg.GroupID, &sg.Title, &sg.Author, &sg.YouTube, &sg.VersionOf, &sg.Likes, &sg.CreatorID, &sg.Creator, &sg.CreatedAt)
	if errors.Is(err, db.ErrNoRows) {
		return models.Suggestion{}, ErrNotFound
	}
	if err != nil {
		return models.Suggestion{}, err
	}
	return sg, nil
}

func (s *Store) CreateSuggestion(ctx context.Context, groupID, creatorID int64, title string, author, youtube, versionOf *string) (models.Suggestion, error) {
	id, err := s.db.Insert(ctx, `INSERT INTO suggestions (group_id, title, author, youtube, version_of, creator_id) VALUES (?, ?, ?, ?, ?, ?)`,
		groupID, title, author, youtube, versionOf, creatorID)
	if err != nil {
		return models.Suggestion{}, err
	}
	return s.SuggestionByID(ctx, groupID, id)
}

func (s *Store) UpdateSuggestion(ctx context.Context, groupID, id int64, title string, author, youtube, versionOf *string) error {
	n, err := s.db.Exec(ctx, `UPDATE suggestions SET title = ?, author = ?, youtube = ?, version_of = ? WHERE id = ? AND group_id = ?`,
		title, author, youtube, versionOf, id, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSuggestion(ctx context.Context, groupID, id int64) error {
	return db.WithTx(ctx, s.db, func(tx db.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM suggestion_votes WHERE suggestion_id = ?`, id); err != nil {
			return err
		}
		n, err := tx.Exec(ctx, `DELETE FROM suggestions WHERE id = ? AND group_id = ?`, id, groupID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Vote records the user's vote once; voting again is a no-op. The denormalized
// likes counter is recomputed from the votes table inside the same
// transaction so the two can never drift.
func (s *Store) Vote(ctx context.Context, groupID, id, userID int64) (models.Suggestion, error) {
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		if err := suggestionInGroup(ctx, tx, groupID, id); err != nil {
			return err
		}
		if _, err := tx.Insert(ctx, `INSERT INTO suggestion_votes (suggestion_id, user_id) VALUES (?, ?)`, id, userID); err != nil && !db.IsConflict(err) {
			return err
		}
		return syncLikes(ctx, tx, id)
	})
	if err != nil {
		return models.Suggestion{}, err
	}
	return s.SuggestionByID(ctx, groupID, id)
}

// Unvote withdraws the user's vote; withdrawing an absent vote is a no-op.
func (s *Store) Unvote(ctx context.Context, groupID, id, userID int64) (models.Suggestion, error) {
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		if err := suggestionInGroup(ctx, tx, groupID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM suggestion_votes WHERE suggestion_id = ? AND user_id = ?`, id, userID); err != nil {
			return err
		}
		return syncLikes(ctx, tx, id)
	})
	if err != nil {
		return models.Suggestion{}, err
	}
	return s.SuggestionByID(ctx, groupID, id)
}

func suggestionInGroup(ctx context.Context, q db.Querier, groupID, id int64) error {
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM suggestions WHERE id = ? AND group_id = ?`, id, groupID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func syncLikes(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE suggestions SET likes = (SELECT COUNT(*) FROM suggestion_votes WHERE suggestion_id = ?) WHERE id = ?`, id, id)
	return err
}
