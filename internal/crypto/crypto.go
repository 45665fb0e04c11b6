// Package crypto encrypts secrets stored at rest (notification URLs, the API key)
// with AES-256-GCM. The key is derived from TICKR_ENCRYPTION_KEY with HKDF-SHA256;
// without a configured secret values pass through unchanged.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// EncryptedPrefix is prepended to encrypted values to identify them
	EncryptedPrefix = "enc:v1:"

	// EnvEncryptionKey names the environment variable holding the secret.
	EnvEncryptionKey = "TICKR_ENCRYPTION_KEY"

	hkdfInfo = "tickr at-rest encryption v1"
)

var (
	keyManager     *KeyManager
	keyManagerOnce sync.Once

	ErrNoEncryptionKey = errors.New("no encryption key configured")
	ErrDecryptFailed   = errors.New("decryption failed: invalid ciphertext")
)

// KeyManager holds the derived AES key.
type KeyManager struct {
	key []byte
}

// NewKeyManager derives a 32-byte key from secret. An empty secret yields a
// manager without a key, which passes values through.
func NewKeyManager(secret string) (*KeyManager, error) {
	if secret == "" {
		return &KeyManager{}, nil
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &KeyManager{key: key}, nil
}

// GetKeyManager returns the process-wide manager built from the environment.
func GetKeyManager() *KeyManager {
	keyManagerOnce.Do(func() {
		km, err := NewKeyManager(os.Getenv(EnvEncryptionKey))
		if err != nil {
			km = &KeyManager{}
		}
		keyManager = km
	})
	return keyManager
}

// HasKey returns true if an encryption key is configured
func (km *KeyManager) HasKey() bool {
	return km.key != nil
}

func (km *KeyManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(km.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext and returns it base64-encoded behind EncryptedPrefix.
func (km *KeyManager) Encrypt(plaintext string) (string, error) {
	if !km.HasKey() || plaintext == "" {
		return plaintext, nil
	}

	aesGCM, err := km.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without EncryptedPrefix are returned as-is.
func (km *KeyManager) Decrypt(ciphertext string) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}
	if !km.HasKey() {
		return "", ErrNoEncryptionKey
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	aesGCM, err := km.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", ErrDecryptFailed
	}

	plaintext, err := aesGCM.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// Encrypt encrypts plaintext using the global key manager
func Encrypt(plaintext string) (string, error) {
	return GetKeyManager().Encrypt(plaintext)
}

// Decrypt decrypts ciphertext using the global key manager
func Decrypt(ciphertext string) (string, error) {
	return GetKeyManager().Decrypt(ciphertext)
}

// IsEncrypted checks if a value appears to be encrypted
func IsEncrypted(value string) bool {
	return len(value) > len(EncryptedPrefix) && strings.HasPrefix(value, EncryptedPrefix)
}

// EncryptionEnabled returns true if encryption is enabled
func EncryptionEnabled() bool {
	return GetKeyManager().HasKey()
}
