package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var (
	ErrInvalidKey = errors.New("secret key must be 32 bytes")
	ErrDecrypt    = errors.New("failed to open sealed value")
)

// Box seals small secrets (provider access tokens) with a symmetric key.
type Box struct {
	key [KeySize]byte
}

func NewBox(secret string) (*Box, error) {
	if len(secret) != KeySize {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], secret)
	return b, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext as base64url.
func (b *Box) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &b.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < nonceSize {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// GenerateRandomString produces a cryptographically random base64url string of n bytes.
func GenerateRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
