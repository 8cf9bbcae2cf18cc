package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength      = 16
	pbkdf2Iters     = 100_000
	pbkdf2KeyLength = 32
)

// HashPassword derives a PBKDF2-SHA256 hash of password under a fresh
// random salt.
func HashPassword(password string) (salt, hash []byte, err error) {
	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	hash = pbkdf2.Key([]byte(password), salt, pbkdf2Iters, pbkdf2KeyLength, sha256.New)
	return salt, hash, nil
}

// VerifyPassword re-derives the hash and compares it in constant time.
func VerifyPassword(password string, salt, expected []byte) bool {
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iters, pbkdf2KeyLength, sha256.New)
	return hmac.Equal(hash, expected)
}
