// Package secret derives purpose-bound keys from the session secret and seals
// small values (OAuth tokens) before they are written to the database.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// Key purposes. Each purpose yields an independent key from the same secret.
const (
	PurposeState      = "oauth-state"
	PurposeTokenStore = "token-store"
)

const nonceSize = 24

var ErrOpen = errors.New("secret: cannot open sealed value")

// DeriveKey expands secret into a 32-byte key bound to purpose.
func DeriveKey(secret, purpose string) ([32]byte, error) {
	var key [32]byte
	if secret == "" {
		return key, errors.New("secret: empty secret")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("voice-forms-bot/"+purpose))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("secret: derive %s key: %w", purpose, err)
	}
	return key, nil
}

// Sealer encrypts and authenticates values with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer creates a Sealer keyed for the token store.
func NewSealer(secret string) (*Sealer, error) {
	key, err := DeriveKey(secret, PurposeTokenStore)
	if err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// Seal returns nonce||box. A nil or empty input seals to nil so optional
// columns stay empty.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("secret: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
