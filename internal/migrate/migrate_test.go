package migrate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/db/sqlite"
)

func openTestDB(t *testing.T) db.Adapter {
	t.Helper()
	a, err := sqlite.Open(filepath.Join(t.TempDir(), "migrate_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t)
	opts := Options{AdminPassword: "bootstrap-secret"}

	if err := Run(ctx, a, opts); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Run(ctx, a, opts); err != nil {
		t.Fatalf("second run: %v", err)
	}

	for _, table := range []string{"groups", "users", "memberships", "sessions", "settings", "suggestions", "suggestion_votes", "rehearsals", "performances", "logs"} {
		ok, err := a.HasTable(ctx, table)
		if err != nil {
			t.Fatalf("HasTable(%s): %v", table, err)
		}
		if !ok {
			t.Fatalf("table %s missing after migration", table)
		}
	}

	var admins int
	if err := a.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, "admin").Scan(&admins); err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if admins != 1 {
		t.Fatalf("admin seeded %d times, want 1", admins)
	}
}

func TestRunRefusesFreshInstallWithoutAdminPassword(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t)
	err := Run(ctx, a, Options{})
	if !errors.Is(err, ErrBootstrapRequired) {
		t.Fatalf("expected ErrBootstrapRequired, got %v", err)
	}
}

func TestRunSkipsSeedWhenUsersExist(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t)
	if err := Run(ctx, a, Options{AdminPassword: "bootstrap-secret"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// No password needed once users exist.
	if err := Run(ctx, a, Options{}); err != nil {
		t.Fatalf("rerun without password: %v", err)
	}
}

func TestLegacyGroupMembersRename(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t)

	stmts := []string{
		`CREATE TABLE group_members (
			user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL
		)`,
		`INSERT INTO group_members (user_id, group_id) VALUES (1, 1)`,
		`INSERT INTO group_members (user_id, group_id) VALUES (2, 1)`,
	}
	for _, stmt := range stmts {
		if _, err := a.Exec(ctx, stmt); err != nil {
			t.Fatalf("seed legacy table: %v", err)
		}
	}

	if err := Run(ctx, a, Options{AdminPassword: "bootstrap-secret"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	legacy, err := a.HasTable(ctx, "group_members")
	if err != nil {
		t.Fatalf("HasTable: %v", err)
	}
	if legacy {
		t.Fatal("legacy group_members table still present")
	}

	var migrated int
	if err := a.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE group_id = ? AND active = 1`, int64(1)).Scan(&migrated); err != nil {
		t.Fatalf("count memberships: %v", err)
	}
	if migrated != 2 {
		t.Fatalf("migrated %d memberships, want 2", migrated)
	}
}

// TestLegacyDatabaseUpgrade walks a pre-multigroup database through the
// whole pipeline: the member table rename, the added columns, and the
// group_id backfill derived from the creator's membership.
func TestLegacyDatabaseUpgrade(t *testing.T) {
	ctx := context.Background()
	a := openTestDB(t)

	legacy := []struct {
		stmt string
		args []any
	}{
		{`CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			salt BLOB NOT NULL,
			password_hash BLOB NOT NULL
		)`, nil},
		{`CREATE TABLE groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			invitation_code TEXT NOT NULL UNIQUE,
			description TEXT,
			logo_url TEXT,
			owner_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, nil},
		{`CREATE TABLE group_members (
			user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL
		)`, nil},
		{`CREATE TABLE suggestions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT,
			youtube TEXT,
			url TEXT,
			version_of TEXT,
			likes INTEGER NOT NULL DEFAULT 0,
			creator_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, nil},
		{`INSERT INTO users (username, salt, password_hash) VALUES (?, ?, ?)`, []any{"legacy", []byte{1}, []byte{2}}},
		{`INSERT INTO groups (name, invitation_code, owner_id) VALUES (?, ?, ?)`, []any{"Band", "AAAAAA", int64(1)}},
		{`INSERT INTO group_members (user_id, group_id) VALUES (?, ?)`, []any{int64(1), int64(1)}},
		{`INSERT INTO suggestions (title, creator_id) VALUES (?, ?)`, []any{"Song", int64(1)}},
	}
	for _, s := range legacy {
		if _, err := a.Exec(ctx, s.stmt, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.stmt, err)
		}
	}

	// Users already exist, so no bootstrap credential is needed.
	if err := Run(ctx, a, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, col := range []string{"role", "last_group_id"} {
		ok, err := a.HasColumn(ctx, "users", col)
		if err != nil {
			t.Fatalf("HasColumn(users.%s): %v", col, err)
		}
		if !ok {
			t.Fatalf("users.%s missing after migration", col)
		}
	}

	var groupID int64
	if err := a.QueryRow(ctx, `SELECT group_id FROM suggestions WHERE title = ?`, "Song").Scan(&groupID); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if groupID != 1 {
		t.Fatalf("backfilled group_id = %d, want 1", groupID)
	}
}
