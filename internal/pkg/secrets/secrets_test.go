package secrets

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBox_RequiresSecret(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)

	_, err = NewBox("   ")
	assert.Error(t, err)

	box, err := NewBox("test-secret")
	require.NoError(t, err)
	assert.NotNil(t, box)
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	box, err := NewBox("test-secret")
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"Empty string", ""},
		{"Short token", "EAAG..."},
		{"Long token", strings.Repeat("EAAGtoken0123456789", 64)},
		{"Binary-ish bytes", string([]byte{0x00, 0xff, 0x7f, 0x80, 0x0a})},
		{"Unicode", "tøken-ümlaut-✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := box.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ct, "v1:"), "ciphertext must carry the key version tag")

			pt, err := box.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestEncrypt_NoncesAreUnique(t *testing.T) {
	box, err := NewBox("test-secret")
	require.NoError(t, err)

	first, err := box.Encrypt("same input")
	require.NoError(t, err)
	second, err := box.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	box, err := NewBox("test-secret")
	require.NoError(t, err)

	ct, err := box.Encrypt("super-secret-access-token")
	require.NoError(t, err)

	parts := strings.Split(ct, ":")
	require.Len(t, parts, 3)

	sealed, err := hex.DecodeString(parts[2])
	require.NoError(t, err)

	// Flip one byte in every position and verify decryption always fails
	// with ErrCorruptedSecret instead of returning corrupted plaintext.
	for i := range sealed {
		mutated := make([]byte, len(sealed))
		copy(mutated, sealed)
		mutated[i] ^= 0x01

		tampered := parts[0] + ":" + parts[1] + ":" + hex.EncodeToString(mutated)
		_, err := box.Decrypt(tampered)
		require.Error(t, err, "byte %d", i)
		assert.True(t, errors.Is(err, ErrCorruptedSecret), "byte %d", i)
	}
}

func TestDecrypt_MalformedInput(t *testing.T) {
	box, err := NewBox("test-secret")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"No separators", "deadbeef"},
		{"Too few parts", "v1:aabb"},
		{"Unknown version", "v9:aabbccddeeff00112233aabb:deadbeef"},
		{"Invalid nonce hex", "v1:zzzz:deadbeef"},
		{"Wrong nonce length", "v1:aabb:deadbeef"},
		{"Invalid payload hex", "v1:aabbccddeeff00112233aabb:zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := box.Decrypt(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptedSecret))
		})
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	boxA, err := NewBox("secret-a")
	require.NoError(t, err)
	boxB, err := NewBox("secret-b")
	require.NoError(t, err)

	ct, err := boxA.Encrypt("token")
	require.NoError(t, err)

	_, err = boxB.Decrypt(ct)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptedSecret))
}
