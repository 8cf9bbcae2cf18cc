package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/db/sqlite"
	"github.com/ebrangerieau/BandtrackPlus/internal/migrate"
)

func newTestAdapter(t *testing.T) db.Adapter {
	t.Helper()
	a, err := sqlite.Open(filepath.Join(t.TempDir(), "auth_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := migrate.Run(context.Background(), a, migrate.Options{AdminPassword: "bootstrap-secret"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return a
}

func seedUser(t *testing.T, a db.Adapter, username string) int64 {
	t.Helper()
	id, err := a.Insert(context.Background(), `INSERT INTO users (username, salt, password_hash, role) VALUES (?, ?, ?, ?)`,
		username, []byte{1}, []byte{2}, "user")
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return id
}

func seedGroup(t *testing.T, a db.Adapter, name, code string, ownerID int64) int64 {
	t.Helper()
	id, err := a.Insert(context.Background(), `INSERT INTO groups (name, invitation_code, owner_id) VALUES (?, ?, ?)`,
		name, code, ownerID)
	if err != nil {
		t.Fatalf("seed group %s: %v", name, err)
	}
	return id
}

func seedMembership(t *testing.T, a db.Adapter, userID, groupID int64, role string) {
	t.Helper()
	_, err := a.Insert(context.Background(), `INSERT INTO memberships (user_id, group_id, role, active) VALUES (?, ?, ?, 1)`,
		userID, groupID, role)
	if err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

func TestIssueAndResolve(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)

	userID := seedUser(t, a, "alice")
	groupID := seedGroup(t, a, "Band", "AAAAAA", userID)
	seedMembership(t, a, userID, groupID, "admin")

	issued, err := sessions.Issue(ctx, userID, &groupID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(issued.Token) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(issued.Token))
	}

	resolved, err := sessions.Resolve(ctx, issued.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.UserID != userID {
		t.Fatalf("resolved user %d, want %d", resolved.UserID, userID)
	}
	if resolved.GroupID == nil || *resolved.GroupID != groupID {
		t.Fatalf("resolved group %v, want %d", resolved.GroupID, groupID)
	}
}

func TestResolveSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)

	userID := seedUser(t, a, "alice")
	issued, err := sessions.Issue(ctx, userID, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Age the session down to an hour from now, then resolve.
	soon := time.Now().Add(time.Hour).Unix()
	if _, err := a.Exec(ctx, `UPDATE sessions SET expires_at = ? WHERE token = ?`, soon, issued.Token); err != nil {
		t.Fatalf("age session: %v", err)
	}
	if _, err := sessions.Resolve(ctx, issued.Token); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var expires int64
	if err := a.QueryRow(ctx, `SELECT expires_at FROM sessions WHERE token = ?`, issued.Token).Scan(&expires); err != nil {
		t.Fatalf("read expiry: %v", err)
	}
	if expires <= soon {
		t.Fatalf("expiry %d not extended beyond %d", expires, soon)
	}
}

func TestResolveSweepsExpired(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)

	userID := seedUser(t, a, "alice")
	stale, err := sessions.Issue(ctx, userID, nil)
	if err != nil {
		t.Fatalf("issue stale: %v", err)
	}
	fresh, err := sessions.Issue(ctx, userID, nil)
	if err != nil {
		t.Fatalf("issue fresh: %v", err)
	}

	past := time.Now().Add(-time.Minute).Unix()
	if _, err := a.Exec(ctx, `UPDATE sessions SET expires_at = ? WHERE token = ?`, past, stale.Token); err != nil {
		t.Fatalf("expire session: %v", err)
	}

	if _, err := sessions.Resolve(ctx, fresh.Token); err != nil {
		t.Fatalf("resolve fresh: %v", err)
	}

	var remaining int
	if err := a.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE token = ?`, stale.Token).Scan(&remaining); err != nil {
		t.Fatalf("count stale: %v", err)
	}
	if remaining != 0 {
		t.Fatal("expired session row not swept")
	}

	if _, err := sessions.Resolve(ctx, stale.Token); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for swept token, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)

	userID := seedUser(t, a, "alice")
	issued, err := sessions.Issue(ctx, userID, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := sessions.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := sessions.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if _, err := sessions.Resolve(ctx, issued.Token); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}
}

func TestBindRewritesGroup(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)

	userID := seedUser(t, a, "alice")
	first := seedGroup(t, a, "First", "AAAAAA", userID)
	second := seedGroup(t, a, "Second", "BBBBBB", userID)
	seedMembership(t, a, userID, first, "admin")
	seedMembership(t, a, userID, second, "user")

	issued, err := sessions.Issue(ctx, userID, &first)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := sessions.Bind(ctx, issued.Token, &second); err != nil {
		t.Fatalf("bind: %v", err)
	}
	resolved, err := sessions.Resolve(ctx, issued.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.GroupID == nil || *resolved.GroupID != second {
		t.Fatalf("bound group %v, want %d", resolved.GroupID, second)
	}
}
