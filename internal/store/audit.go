package store

import (
	"context"
	"time"
)

// AuditEntry is one row of the action log.
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"userId,omitempty"`
	Action    string    `json:"action"`
	Metadata  *string   `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogEvent appends to the action log. Callers treat failures as
// non-fatal; losing an audit row must never fail the request it records.
func (s *Store) LogEvent(ctx context.Context, userID *int64, action string, metadata *string) error {
	_, err := s.db.Insert(ctx, `INSERT INTO logs (user_id, action, metadata) VALUES (?, ?, ?)`, userID, action, metadata)
	return err
}

// AuditLog returns the most recent entries, newest first.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, user_id, action, metadata, created_at FROM logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
