package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEncKey   = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testIndexKey = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
)

func newTestVault(t *testing.T) *PIIVault {
	t.Helper()
	v, err := NewPIIVault(testEncKey, testIndexKey)
	require.NoError(t, err)
	return v
}

func TestPIIVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"tax id", "29ABCDE1234F1Z5"},
		{"account number", "000123456789"},
		{"empty", ""},
		{"unicode", "खाता-१२३"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := v.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotContains(t, ct, tt.plaintext+"x")

			pt, err := v.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestPIIVault_EncryptIsNonDeterministic(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("29ABCDE1234F1Z5")
	require.NoError(t, err)
	b, err := v.Encrypt("29ABCDE1234F1Z5")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestPIIVault_DecryptCorrupted(t *testing.T) {
	v := newTestVault(t)
	ct, err := v.Encrypt("000123456789")
	require.NoError(t, err)

	flipped := []byte(ct)
	if flipped[len(flipped)-1] == '0' {
		flipped[len(flipped)-1] = '1'
	} else {
		flipped[len(flipped)-1] = '0'
	}

	tests := []struct {
		name string
		blob string
	}{
		{"not hex", "zz-not-hex"},
		{"too short", "abcd"},
		{"tampered tag", string(flipped)},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt, err := v.Decrypt(tt.blob)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptedCiphertext))
			assert.Empty(t, pt)
		})
	}
}

func TestPIIVault_DecryptWithOtherKeyFails(t *testing.T) {
	v := newTestVault(t)
	other, err := NewPIIVault(testIndexKey, testEncKey)
	require.NoError(t, err)

	ct, err := v.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ct)
	assert.ErrorIs(t, err, ErrCorruptedCiphertext)
}

func TestPIIVault_BlindIndex(t *testing.T) {
	v := newTestVault(t)

	a := v.BlindIndex("29ABCDE1234F1Z5")
	assert.Equal(t, a, v.BlindIndex("29ABCDE1234F1Z5"), "deterministic")
	assert.Equal(t, a, v.BlindIndex(" 29abcde1234f1z5 "), "normalized case and spaces")
	assert.Equal(t, a, v.BlindIndex("29ABCDE-1234-F1Z5"), "normalized hyphens")
	assert.NotEqual(t, a, v.BlindIndex("29ABCDE1234F1Z6"))
	assert.Len(t, a, 64)
	assert.False(t, strings.Contains(a, "ABCDE"))
}

func TestPIIVault_BlindIndexDependsOnKey(t *testing.T) {
	v := newTestVault(t)
	other, err := NewPIIVault(testEncKey, strings.Repeat("ab", 32))
	require.NoError(t, err)

	assert.NotEqual(t, v.BlindIndex("29ABCDE1234F1Z5"), other.BlindIndex("29ABCDE1234F1Z5"))
}

func TestNewPIIVault_InvalidKeys(t *testing.T) {
	tests := []struct {
		name     string
		enc, idx string
	}{
		{"bad hex", "zz", testIndexKey},
		{"short key", "abcd", testIndexKey},
		{"short index key", testEncKey, "abcd"},
		{"same keys", testEncKey, testEncKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPIIVault(tt.enc, tt.idx)
			assert.Error(t, err)
		})
	}
}
