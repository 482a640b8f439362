package find

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/hazyhaar/pagefind/horosafe"
	"golang.org/x/crypto/hkdf"
)

const secretLen = 32

// NewSecret returns 32 random bytes, hex encoded.
func NewSecret() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("find: secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DeriveSecret derives the secret of one session from a master secret with
// HKDF-SHA256. The same master and session always give the same secret.
func DeriveSecret(master []byte, session string) (string, error) {
	if err := horosafe.ValidateSecret(master); err != nil {
		return "", fmt.Errorf("find: derive secret: %w", err)
	}
	r := hkdf.New(sha256.New, master, nil, []byte("pagefind session "+session))
	buf := make([]byte, secretLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("find: derive secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
