package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrCorruptedSecret is returned when a ciphertext fails to parse or fails GCM
// authentication. Callers must treat this as data corruption and alert; it is
// never acceptable to hand back garbage plaintext.
var ErrCorruptedSecret = errors.New("corrupted secret")

const (
	// keyVersion tags every ciphertext so a future key rotation can route
	// decryption to the right key without a data migration.
	keyVersion = "v1"

	nonceSize = 12 // GCM recommended nonce size
	keySize   = 32 // AES-256

	kdfSalt = "aerostic-salt"
)

// Box performs authenticated symmetric encryption of secrets at rest.
// Key material is derived once at construction and held for the process
// lifetime; Box has no network or persistence side effects.
type Box struct {
	aead cipher.AEAD
}

// NewBox derives an AES-256-GCM key from the configured secret via scrypt.
func NewBox(secret string) (*Box, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("encryption secret is required")
	}

	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), 32768, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext and returns a versioned ciphertext string of the
// form "v1:<nonce hex>:<sealed hex>". The GCM tag is part of the sealed blob.
func (b *Box) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("%s:%s:%s", keyVersion, hex.EncodeToString(nonce), hex.EncodeToString(sealed)), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any malformed input, unknown
// key version or authentication failure yields ErrCorruptedSecret.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrCorruptedSecret)
	}
	if parts[0] != keyVersion {
		return "", fmt.Errorf("%w: unknown key version %q", ErrCorruptedSecret, parts[0])
	}

	nonce, err := hex.DecodeString(parts[1])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: invalid nonce", ErrCorruptedSecret)
	}
	sealed, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: invalid payload encoding", ErrCorruptedSecret)
	}

	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrCorruptedSecret)
	}
	return string(plaintext), nil
}
