package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// minRefreshTokenBytes floors the entropy of an opaque token; configured
// sizes below it are ignored.
const minRefreshTokenBytes = 32

// NewRefreshToken returns a high-entropy opaque token of size random bytes.
// The raw value is handed to the client exactly once; only its hash is ever
// persisted.
func NewRefreshToken(size int) (string, error) {
	if size < minRefreshTokenBytes {
		size = minRefreshTokenBytes
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
