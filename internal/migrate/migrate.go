// Package migrate creates the schema and applies additive evolutions. It
// runs once at process startup, before any request is served, and re-running
// it against an already-migrated database is a no-op.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

// ErrBootstrapRequired aborts startup when a fresh install has no admin
// credential to seed.
var ErrBootstrapRequired = errors.New("ADMIN_PASSWORD must be set on a fresh install")

type Options struct {
	// AdminPassword seeds the initial administrator account on a fresh
	// install. Required then, ignored afterwards.
	AdminPassword string
}

type step struct {
	name string
	run  func(ctx context.Context, a db.Adapter, opts Options) error
}

// Steps run in leaf-to-root order: legacy renames, base tables, join and
// child tables, then column evolutions with their backfills, then seeds.
var steps = []step{
	{"rename legacy group_members", renameLegacyMembers},
	{"create tables", createTables},
	{"users.role", ensureColumn("users", "role", "TEXT NOT NULL DEFAULT 'user'", "")},
	{"users.last_group_id", ensureColumn("users", "last_group_id", "INTEGER", "")},
	{"suggestions.group_id", ensureColumn("suggestions", "group_id", "INTEGER", backfillGroupID("suggestions"))},
	{"rehearsals.group_id", ensureColumn("rehearsals", "group_id", "INTEGER", backfillGroupID("rehearsals"))},
	{"rehearsals.mastered", ensureColumn("rehearsals", "mastered", "INTEGER NOT NULL DEFAULT 0", "")},
	{"performances.group_id", ensureColumn("performances", "group_id", "INTEGER", backfillGroupID("performances"))},
	{"sessions.group_id", ensureColumn("sessions", "group_id", "INTEGER", "")},
	{"settings.template", ensureColumn("settings", "template", "TEXT NOT NULL DEFAULT 'classic'", "")},
	{"seed admin", seedAdmin},
}

// Run applies every migration step in order. Any step failure aborts
// startup; the installation is never left partially migrated without a
// loud error.
func Run(ctx context.Context, a db.Adapter, opts Options) error {
	for _, s := range steps {
		if err := s.run(ctx, a, opts); err != nil {
			return fmt.Errorf("migration %q: %w", s.name, err)
		}
	}
	return nil
}

func createTables(ctx context.Context, a db.Adapter, _ Options) error {
	d := a.Dialect()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS groups (
			id %s,
			name TEXT NOT NULL,
			invitation_code TEXT NOT NULL UNIQUE,
			description TEXT,
			logo_url TEXT,
			owner_id INTEGER NOT NULL,
			created_at %s DEFAULT CURRENT_TIMESTAMP
		)`, d.AutoPrimaryKey, d.Timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			username TEXT NOT NULL UNIQUE,
			salt %s NOT NULL,
			password_hash %s NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			last_group_id INTEGER REFERENCES groups(id)
		)`, d.AutoPrimaryKey, d.Blob, d.Blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memberships (
			id %s,
			user_id INTEGER NOT NULL REFERENCES users(id),
			group_id INTEGER NOT NULL REFERENCES groups(id),
			role TEXT NOT NULL DEFAULT 'user',
			nickname TEXT,
			joined_at %s DEFAULT CURRENT_TIMESTAMP,
			active INTEGER NOT NULL DEFAULT 1
		)`, d.AutoPrimaryKey, d.Timestamp),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_user_group ON memberships(user_id, group_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			group_id INTEGER REFERENCES groups(id),
			expires_at BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS settings (
			id %s,
			group_id INTEGER NOT NULL UNIQUE REFERENCES groups(id),
			group_name TEXT NOT NULL,
			dark_mode INTEGER NOT NULL DEFAULT 1,
			template TEXT NOT NULL DEFAULT 'classic'
		)`, d.AutoPrimaryKey),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS suggestions (
			id %s,
			group_id INTEGER NOT NULL REFERENCES groups(id),
			title TEXT NOT NULL,
			author TEXT,
			youtube TEXT,
			url TEXT,
			version_of TEXT,
			likes INTEGER NOT NULL DEFAULT 0,
			creator_id INTEGER NOT NULL REFERENCES users(id),
			created_at %s DEFAULT CURRENT_TIMESTAMP
		)`, d.AutoPrimaryKey, d.Timestamp),
		`CREATE TABLE IF NOT EXISTS suggestion_votes (
			suggestion_id INTEGER NOT NULL REFERENCES suggestions(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			PRIMARY KEY (suggestion_id, user_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rehearsals (
			id %s,
			group_id INTEGER NOT NULL REFERENCES groups(id),
			title TEXT NOT NULL,
			author TEXT,
			youtube TEXT,
			spotify TEXT,
			version_of TEXT,
			levels_json TEXT NOT NULL DEFAULT '{}',
			notes_json TEXT NOT NULL DEFAULT '{}',
			mastered INTEGER NOT NULL DEFAULT 0,
			creator_id INTEGER NOT NULL REFERENCES users(id),
			created_at %s DEFAULT CURRENT_TIMESTAMP
		)`, d.AutoPrimaryKey, d.Timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS performances (
			id %s,
			group_id INTEGER NOT NULL REFERENCES groups(id),
			name TEXT NOT NULL,
			date TEXT NOT NULL,
			location TEXT,
			songs_json TEXT NOT NULL DEFAULT '[]',
			creator_id INTEGER NOT NULL REFERENCES users(id),
			created_at %s DEFAULT CURRENT_TIMESTAMP
		)`, d.AutoPrimaryKey, d.Timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS logs (
			id %s,
			user_id INTEGER REFERENCES users(id),
			action TEXT NOT NULL,
			metadata TEXT,
			created_at %s DEFAULT CURRENT_TIMESTAMP
		)`, d.AutoPrimaryKey, d.Timestamp),
	}
	for _, stmt := range stmts {
		if _, err := a.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn adds a column when it is missing and, when a backfill
// statement is given, populates it for pre-existing rows.
func ensureColumn(table, column, definition, backfill string) func(context.Context, db.Adapter, Options) error {
	return func(ctx context.Context, a db.Adapter, _ Options) error {
		exists, err := a.HasColumn(ctx, table, column)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
			return err
		}
		if backfill == "" {
			return nil
		}
		_, err = a.Exec(ctx, backfill)
		return err
	}
}

// backfillGroupID derives a tenant for legacy resource rows from the
// creator's earliest active membership rather than a constant default.
func backfillGroupID(table string) string {
	return fmt.Sprintf(`UPDATE %[1]s SET group_id = (
		SELECT m.group_id FROM memberships m
		WHERE m.user_id = %[1]s.creator_id AND m.active = 1
		ORDER BY m.joined_at ASC, m.group_id ASC LIMIT 1
	) WHERE group_id IS NULL`, table)
}

// renameLegacyMembers migrates the pre-multigroup group_members table into
// memberships. Guarded twice so it only ever fires on a database that still
// carries the old table and not the new one.
func renameLegacyMembers(ctx context.Context, a db.Adapter, _ Options) error {
	legacy, err := a.HasTable(ctx, "group_members")
	if err != nil {
		return err
	}
	if !legacy {
		return nil
	}
	current, err := a.HasTable(ctx, "memberships")
	if err != nil {
		return err
	}
	if current {
		return nil
	}
	d := a.Dialect()
	return db.WithTx(ctx, a, func(tx db.Tx) error {
		stmt := fmt.Sprintf(`CREATE TABLE memberships (
			id %s,
			user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			nickname TEXT,
			joined_at %s DEFAULT CURRENT_TIMESTAMP,
			active INTEGER NOT NULL DEFAULT 1
		)`, d.AutoPrimaryKey, d.Timestamp)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO memberships (user_id, group_id, role, active) SELECT user_id, group_id, 'user', 1 FROM group_members`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DROP TABLE group_members`)
		return err
	})
}

// seedAdmin provisions the initial administrator credential. A fresh
// install without one is refused: starting an empty installation with no
// way to administer it would be insecure, not convenient.
func seedAdmin(ctx context.Context, a db.Adapter, opts Options) error {
	var count int
	if err := a.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if opts.AdminPassword == "" {
		return ErrBootstrapRequired
	}
	salt, hash, err := auth.HashPassword(opts.AdminPassword)
	if err != nil {
		return err
	}
	_, err = a.Insert(ctx, `INSERT INTO users (username, salt, password_hash, role) VALUES (?, ?, ?, ?)`,
		"admin", salt, hash, string(models.RoleAdmin))
	return err
}
