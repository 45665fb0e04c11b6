package auth

import (
	"encoding/base64"
	"errors"
	"testing"
)

type memoryStore struct {
	values map[string]string
	getErr error
}

func (m *memoryStore) GetSetting(key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryStore) SetSetting(key, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

// =============================================================================
// GenerateAPIKey tests
// =============================================================================

func TestGenerateAPIKey_ReturnsValidBase64(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	decoded, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		t.Errorf("GenerateAPIKey() returned invalid base64url: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("GenerateAPIKey() decoded length = %d, want 32", len(decoded))
	}
	// 32 bytes -> 44 characters with padding
	if len(key) != 44 {
		t.Errorf("GenerateAPIKey() length = %d, want 44", len(key))
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	keys := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() iteration %d error = %v", i, err)
		}
		if keys[key] {
			t.Errorf("GenerateAPIKey() produced duplicate key on iteration %d", i)
		}
		keys[key] = true
	}
}

// =============================================================================
// EnsureAPIKey tests
// =============================================================================

func TestEnsureAPIKey_ConfiguredWins(t *testing.T) {
	store := &memoryStore{}
	key, err := EnsureAPIKey(store, "configured")
	if err != nil {
		t.Fatalf("EnsureAPIKey() error = %v", err)
	}
	if key != "configured" {
		t.Errorf("EnsureAPIKey() = %q, want configured", key)
	}
	if len(store.values) != 0 {
		t.Error("configured key must not be stored")
	}
}

func TestEnsureAPIKey_GeneratesOnceAndReuses(t *testing.T) {
	store := &memoryStore{}

	first, err := EnsureAPIKey(store, "")
	if err != nil {
		t.Fatalf("EnsureAPIKey() error = %v", err)
	}
	if first == "" {
		t.Fatal("EnsureAPIKey() returned empty key")
	}
	if _, ok := store.values[SettingAPIKey]; !ok {
		t.Fatal("generated key should be stored")
	}

	second, err := EnsureAPIKey(store, "")
	if err != nil {
		t.Fatalf("EnsureAPIKey() error = %v", err)
	}
	if second != first {
		t.Errorf("EnsureAPIKey() = %q on second call, want %q", second, first)
	}
}

func TestEnsureAPIKey_StoreError(t *testing.T) {
	store := &memoryStore{getErr: errors.New("disk on fire")}
	if _, err := EnsureAPIKey(store, ""); err == nil {
		t.Error("EnsureAPIKey() should surface store errors")
	}
}
