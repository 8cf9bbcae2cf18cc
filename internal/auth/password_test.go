package auth

import (
	"bytes"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	salt, hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword("correct horse", salt, hash) {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword("battery staple", salt, hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestPasswordSaltsDiffer(t *testing.T) {
	salt1, hash1, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	salt2, hash2, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Fatal("two hashes share a salt")
	}
	if bytes.Equal(hash1, hash2) {
		t.Fatal("two salted hashes are identical")
	}
}
