// Package auth manages the API key that protects the HTTP API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/mescon/tickr/internal/crypto"
	"github.com/mescon/tickr/internal/logger"
)

// SettingAPIKey is the settings key under which a generated key is stored.
const SettingAPIKey = "api_key"

// SettingsStore is the subset of the repository used to persist the key.
type SettingsStore interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// GenerateAPIKey returns 32 random bytes, base64url encoded.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// EnsureAPIKey returns the key the API should accept. A configured key wins
// and is never stored. Otherwise the stored key is used, or a new one is
// generated and stored (encrypted when an encryption key is set).
func EnsureAPIKey(store SettingsStore, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	stored, ok, err := store.GetSetting(SettingAPIKey)
	if err != nil {
		return "", err
	}
	if ok && stored != "" {
		key, err := crypto.Decrypt(stored)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt stored API key: %w", err)
		}
		return key, nil
	}

	key, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	encrypted, err := crypto.Encrypt(key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt API key: %w", err)
	}
	if err := store.SetSetting(SettingAPIKey, encrypted); err != nil {
		return "", err
	}
	logger.Infof("Generated a new API key; it is shown once below")
	logger.Infof("API key: %s", key)
	return key, nil
}
