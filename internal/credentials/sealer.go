package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const sealedPrefix = "enc:v1:"

var keySalt = []byte("schoolfees.accounting.credentials")

// ErrUnsealable is returned when a sealed value cannot be decrypted with the
// configured key.
var ErrUnsealable = errors.New("credential value cannot be decrypted")

// Sealer protects token values at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// NoopSealer stores values as-is.
type NoopSealer struct{}

func (NoopSealer) Seal(plaintext string) (string, error) { return plaintext, nil }

func (NoopSealer) Open(value string) (string, error) {
	if strings.HasPrefix(value, sealedPrefix) {
		return "", fmt.Errorf("%w: no encryption key configured", ErrUnsealable)
	}
	return value, nil
}

// AEADSealer encrypts values with XChaCha20-Poly1305 under a key derived from
// a passphrase. Values without the sealed prefix are returned unchanged so
// rows written before a key was configured stay readable.
type AEADSealer struct {
	key []byte
}

// NewAEADSealer derives the encryption key from passphrase.
func NewAEADSealer(passphrase string) (*AEADSealer, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("credential encryption key is empty")
	}
	key := pbkdf2.Key([]byte(passphrase), keySalt, 100000, chacha20poly1305.KeySize, sha256.New)
	return &AEADSealer{key: key}, nil
}

func (s *AEADSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (s *AEADSealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: value too short", ErrUnsealable)
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	return string(plaintext), nil
}
