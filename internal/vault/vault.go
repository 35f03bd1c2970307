// Package vault encrypts credential material at rest with AES-256-GCM.
//
// Ciphertext is a single string "nonce:tag:ciphertext" where each component
// is standard base64. The nonce is 12 random bytes drawn per call and the
// tag is the 16-byte GCM authentication tag.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/sassongal/revWave-sub000/internal/domain"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
	separator = ":"
)

// Vault encrypts and decrypts secrets with a single master key.
// It is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: encryption key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// NewFromEncodedKey decodes a hex or base64 master key and creates a vault.
// The decoded key must be exactly 32 bytes; there is no fallback.
func NewFromEncodedKey(encoded string) (*Vault, error) {
	key, err := DecodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// DecodeKey accepts a 64-char hex string or a base64 string (standard or
// URL alphabet, padded or not) and returns the raw key bytes.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("vault: encryption key is not set")
	}

	if len(encoded) == keySize*2 {
		if key, err := hex.DecodeString(encoded); err == nil {
			return key, nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != keySize {
				return nil, fmt.Errorf("vault: encryption key must decode to %d bytes, got %d", keySize, len(key))
			}
			return key, nil
		}
	}

	return nil, fmt.Errorf("vault: encryption key is neither hex nor base64")
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("vault: encrypt: %w", domain.ErrEmptyInput)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(body),
	}, separator), nil
}

// Decrypt opens a value produced by Encrypt. Malformed input and failed
// authentication both return domain.ErrDecryptionFailed; the error never
// includes the input.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("vault: decrypt: %w", domain.ErrEmptyInput)
	}

	parts := strings.Split(ciphertext, separator)
	if len(parts) != 3 {
		return "", fmt.Errorf("vault: malformed ciphertext: %w", domain.ErrDecryptionFailed)
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("vault: invalid nonce: %w", domain.ErrDecryptionFailed)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("vault: invalid tag: %w", domain.ErrDecryptionFailed)
	}
	body, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("vault: invalid body: %w", domain.ErrDecryptionFailed)
	}

	plaintext, err := v.aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("vault: authentication failed: %w", domain.ErrDecryptionFailed)
	}

	return string(plaintext), nil
}
