package auth

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher is the one-way password hash used by the chat service. Digests are
// deterministic so stored and supplied passwords compare by equality.
type Hasher interface {
	Hash(password string) string
}

type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// GravatarHash returns the gravatar hash for an e-mail address (md5 of the
// lower-cased address, per the gravatar spec).
func GravatarHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}
