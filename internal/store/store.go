// Package store implements the application's data access on top of the
// backend-neutral adapter in internal/db. Every method speaks the `?`
// placeholder dialect; nothing here knows which engine is underneath.
package store

import (
	"crypto/rand"
	"errors"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
)

// DefaultGroupName names the group created for the very first registrant.
const DefaultGroupName = "BandTrack"

var (
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("unknown invitation code")
	ErrAlreadyMember      = errors.New("already a member of this group")
	ErrLastAdmin          = errors.New("group must keep at least one admin")
	ErrOwnsGroups         = errors.New("account still owns groups")
)

type Store struct {
	db db.Adapter
}

func New(a db.Adapter) *Store {
	return &Store{db: a}
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// invitationCode returns a fresh 6-character join code. Uniqueness is
// enforced by the schema; callers retry on conflict.
func invitationCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
