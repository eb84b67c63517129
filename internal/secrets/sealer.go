// Package secrets seals account credentials at rest.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gameshop-api/internal/model"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "gameshop-api account credentials v1"

// ErrOpen is returned when sealed data cannot be authenticated.
var ErrOpen = errors.New("secrets: unable to open sealed credentials")

// Sealer encrypts credentials with XChaCha20-Poly1305 under a key derived
// from the configured secret. The account ID is bound as associated data, so
// sealed blobs cannot be moved between accounts.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("secrets: credentials secret must be at least 16 bytes")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts creds for accountID. Output is nonce || ciphertext.
func (s *Sealer) Seal(accountID string, creds model.Credentials) ([]byte, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("secrets: encode: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, []byte(accountID)), nil
}

// Open decrypts a blob produced by Seal for the same accountID.
func (s *Sealer) Open(accountID string, sealed []byte) (*model.Credentials, error) {
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, ErrOpen
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]

	plain, err := s.aead.Open(nil, nonce, ct, []byte(accountID))
	if err != nil {
		return nil, ErrOpen
	}

	var creds model.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("secrets: decode: %w", err)
	}
	return &creds, nil
}
