package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrCorruptedCiphertext is returned when a stored blob cannot be opened.
var ErrCorruptedCiphertext = errors.New("corrupted ciphertext")

// PIIVault implements ports.VaultService: AES-256-GCM for storage and an
// HMAC-SHA256 blind index for equality lookups.
type PIIVault struct {
	aead     cipher.AEAD
	indexKey []byte
}

// NewPIIVault builds a vault from two distinct 64-character hex keys.
func NewPIIVault(encryptionKeyHex, blindIndexKeyHex string) (*PIIVault, error) {
	encKey, err := decodeKey("encryption", encryptionKeyHex)
	if err != nil {
		return nil, err
	}
	indexKey, err := decodeKey("blind index", blindIndexKeyHex)
	if err != nil {
		return nil, err
	}
	if hmac.Equal(encKey, indexKey) {
		return nil, fmt.Errorf("blind index key must differ from encryption key")
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &PIIVault{aead: aead, indexKey: indexKey}, nil
}

func decodeKey(name, hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding %s key: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s key must be 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext under a fresh random nonce.
// Returns hex(nonce || ciphertext || tag).
func (v *PIIVault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any malformed input or failed
// tag check wraps ErrCorruptedCiphertext.
func (v *PIIVault) Decrypt(ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: decoding: %v", ErrCorruptedCiphertext, err)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize+v.aead.Overhead() {
		return "", fmt.Errorf("%w: blob too short", ErrCorruptedCiphertext)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptedCiphertext, err)
	}
	return string(plaintext), nil
}

// BlindIndex returns hex(HMAC-SHA256(indexKey, normalized plaintext)).
func (v *PIIVault) BlindIndex(plaintext string) string {
	mac := hmac.New(sha256.New, v.indexKey)
	mac.Write([]byte(normalizeIdentifier(plaintext)))
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeIdentifier makes "29abcde1234f1z5" and "29ABCDE 1234-F1Z5" index equally.
func normalizeIdentifier(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}
