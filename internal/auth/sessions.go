package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// DefaultSessionTTL is the sliding expiration window.
const DefaultSessionTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// Sessions issues, resolves, and revokes opaque bearer tokens. All
// authority is server-side state: deleting a row revokes the token
// immediately and totally.
type Sessions struct {
	db  db.Adapter
	ttl time.Duration
	now func() time.Time
}

func NewSessions(adapter db.Adapter, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{db: adapter, ttl: ttl, now: time.Now}
}

// TTL returns the sliding window, for cookie expiry.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue creates a session bound to a user and an optional active group and
// returns the token. Tokens are crypto/rand, never derived from caller
// data.
func (s *Sessions) Issue(ctx context.Context, userID int64, groupID *int64) (models.Session, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return models.Session{}, err
	}
	token := hex.EncodeToString(raw)
	expires := s.now().Add(s.ttl)
	_, err := s.db.Exec(ctx, `INSERT INTO sessions (token, user_id, group_id, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, groupID, expires.Unix())
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Token: token, UserID: userID, GroupID: groupID, ExpiresAt: expires}, nil
}

// Resolve sweeps expired rows, looks up the token, and slides its expiry
// forward. Returns ErrSessionNotFound on miss; the caller treats the
// request as anonymous.
func (s *Sessions) Resolve(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrSessionNotFound
	}
	var session models.Session
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		now := s.now()
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix()); err != nil {
			return err
		}
		var expires int64
		err := tx.QueryRow(ctx, `SELECT user_id, group_id, expires_at FROM sessions WHERE token = ?`, token).
			Scan(&session.UserID, &session.GroupID, &expires)
		if errors.Is(err, db.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		newExpiry := now.Add(s.ttl)
		if _, err := tx.Exec(ctx, `UPDATE sessions SET expires_at = ? WHERE token = ?`, newExpiry.Unix(), token); err != nil {
			return err
		}
		session.Token = token
		session.ExpiresAt = newExpiry
		return nil
	})
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// Revoke deletes the session row. Idempotent when the token is already
// gone.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// Bind stores a new active group on the session. Only the explicit
// switch-context operation calls this; path overrides never do.
func (s *Sessions) Bind(ctx context.Context, token string, groupID *int64) error {
	_, err := s.db.Exec(ctx, `UPDATE sessions SET group_id = ? WHERE token = ?`, groupID, token)
	return err
}
