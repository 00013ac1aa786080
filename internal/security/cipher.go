package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"docuvault/internal/types"
)

const nonceSize = 12 // 96-bit GCM nonce

// FieldCipher encrypts and decrypts individual fields with AES-256-GCM.
// The wire format is nonce‖ciphertext. When disabled (test/dev escape
// hatch, not a production mode) both directions are the identity function
// on UTF-8 bytes.
type FieldCipher struct {
	enabled bool
}

func NewFieldCipher(enabled bool) *FieldCipher {
	return &FieldCipher{enabled: enabled}
}

// Enabled reports whether encryption is active.
func (c *FieldCipher) Enabled() bool {
	return c.enabled
}

// Encrypt seals plaintext under key with a fresh random nonce. Empty
// plaintext encrypts to an empty blob.
func (c *FieldCipher) Encrypt(plaintext string, key []byte) ([]byte, error) {
	if !c.enabled {
		return []byte(plaintext), nil
	}
	if plaintext == "" {
		return nil, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm failed: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce failed: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a nonce‖ciphertext blob. Wrong key, corruption and
// truncated input all fail with types.ErrDecryption; corrupted plaintext
// is never returned.
func (c *FieldCipher) Decrypt(blob []byte, key []byte) (string, error) {
	if !c.enabled {
		return string(blob), nil
	}
	if len(blob) == 0 {
		return "", nil
	}
	if len(blob) < nonceSize {
		return "", fmt.Errorf("%w: blob shorter than nonce", types.ErrDecryption)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm failed: %w", err)
	}

	plaintext, err := aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", types.ErrDecryption)
	}
	return string(plaintext), nil
}
