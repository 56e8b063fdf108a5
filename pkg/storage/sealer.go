package storage

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion = byte(1)
	saltSize    = 16

	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// ErrSealedDataInvalid is returned when a blob cannot be authenticated with the secret.
var ErrSealedDataInvalid = errors.New("sealed data invalid or secret mismatch")

// Sealer encrypts small payloads at rest with XChaCha20-Poly1305. The key is derived
// from a passphrase with Argon2id and a random salt stored alongside each blob.
type Sealer struct {
	secret []byte

	mu      sync.Mutex
	lastKey []byte
	lastSlt []byte
}

// NewSealer constructs a sealer bound to the provided secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("sealing secret missing")
	}
	return &Sealer{secret: []byte(secret)}, nil
}

// Seal encrypts plaintext. The layout is version | salt | nonce | ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte{sealVersion}), nil
}

// Open authenticates and decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	header := 1 + saltSize + chacha20poly1305.NonceSizeX
	if len(sealed) < header || sealed[0] != sealVersion {
		return nil, ErrSealedDataInvalid
	}
	salt := sealed[1 : 1+saltSize]
	nonce := sealed[1+saltSize : header]

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed[header:], []byte{sealVersion})
	if err != nil {
		return nil, ErrSealedDataInvalid
	}
	return plaintext, nil
}

func (s *Sealer) key(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKey != nil && bytes.Equal(s.lastSlt, salt) {
		return s.lastKey
	}
	key := argon2.IDKey(s.secret, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	s.lastKey = key
	s.lastSlt = append([]byte(nil), salt...)
	return key
}
