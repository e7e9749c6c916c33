package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const fieldPrefix = "enc:v1:"

// ErrInvalidCiphertext signals a malformed or tampered encrypted field.
var ErrInvalidCiphertext = errors.New("invalid encrypted field")

// FieldCipher encrypts and decrypts PII fields embedded in outbox payloads
// (phone numbers, email addresses). Values are AES-GCM sealed and prefixed so
// plaintext fields pass through untouched.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives an AES-256 key from the configured secret via HKDF.
func NewFieldCipher(secret string) (*FieldCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("field key secret is required")
	}

	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("myhibachi-field-encryption"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive field key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init field cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init field aead: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Encrypt seals a plaintext field value.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", errors.New("field cipher not initialized")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return fieldPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an encrypted field value. Plaintext input (no prefix) is
// returned as-is so producers can migrate gradually.
func (c *FieldCipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, fieldPrefix) {
		return value, nil
	}
	if c == nil || c.aead == nil {
		return "", errors.New("field cipher not initialized")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, fieldPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a value carries the encrypted-field prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, fieldPrefix)
}
