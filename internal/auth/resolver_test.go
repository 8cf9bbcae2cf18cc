package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
)

func TestResolvePrincipal(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)
	resolver := auth.NewResolver(sessions, a)

	userID := seedUser(t, a, "alice")
	groupID := seedGroup(t, a, "Band", "AAAAAA", userID)
	seedMembership(t, a, userID, groupID, "admin")

	issued, err := sessions.Issue(ctx, userID, &groupID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := resolver.Resolve(ctx, issued.Token, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.UserID != userID || p.Username != "alice" {
		t.Fatalf("principal %+v", p)
	}
	if p.GroupID == nil || *p.GroupID != groupID {
		t.Fatalf("principal group %v, want %d", p.GroupID, groupID)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	resolver := auth.NewResolver(auth.NewSessions(a, 0), a)

	_, err := resolver.Resolve(ctx, "deadbeef", nil)
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

// A session binding that outlived its membership resolves tenant-less
// instead of granting access to a group the user already left.
func TestResolveStaleBinding(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)
	resolver := auth.NewResolver(sessions, a)

	userID := seedUser(t, a, "alice")
	groupID := seedGroup(t, a, "Band", "AAAAAA", userID)
	seedMembership(t, a, userID, groupID, "user")

	issued, err := sessions.Issue(ctx, userID, &groupID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Exec(ctx, `UPDATE memberships SET active = 0 WHERE user_id = ?`, userID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	p, err := resolver.Resolve(ctx, issued.Token, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.GroupID != nil {
		t.Fatalf("stale binding resolved to group %d, want none", *p.GroupID)
	}
}

// A path override applies to the request only; the session keeps its
// stored binding.
func TestResolvePathOverride(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	sessions := auth.NewSessions(a, 0)
	resolver := auth.NewResolver(sessions, a)

	userID := seedUser(t, a, "alice")
	first := seedGroup(t, a, "First", "AAAAAA", userID)
	second := seedGroup(t, a, "Second", "BBBBBB", userID)
	seedMembership(t, a, userID, first, "admin")
	seedMembership(t, a, userID, second, "user")

	issued, err := sessions.Issue(ctx, userID, &first)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	p, err := resolver.Resolve(ctx, issued.Token, &second)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.GroupID == nil || *p.GroupID != second {
		t.Fatalf("override group %v, want %d", p.GroupID, second)
	}

	resolved, err := sessions.Resolve(ctx, issued.Token)
	if err != nil {
		t.Fatalf("re-resolve session: %v", err)
	}
	if resolved.GroupID == nil || *resolved.GroupID != first {
		t.Fatalf("session binding %v changed by override, want %d", resolved.GroupID, first)
	}
}
