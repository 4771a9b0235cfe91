// Package secret keeps SSH passwords and key passphrases out of the config
// file. Values are looked up by well-known keys derived from the profile.
package secret

import (
	"sync"
)

// Store persists secrets by key. Implementations must be safe for concurrent use.
type Store interface {
	// Store saves value under key, replacing any existing value.
	Store(key, value string) error
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

const passwordPrefix = "ssh_password_"

// PasswordKey is the key of the login password for a profile.
func PasswordKey(profileID string) string {
	return passwordPrefix + profileID
}

// ProxyPasswordKey is the key of the login password for a jump host. Proxy
// passwords are shared by every profile that uses the same jump host.
func ProxyPasswordKey(host string) string {
	return passwordPrefix + "proxy_" + host
}

// PassphraseKey is the key of the private-key passphrase for a profile.
func PassphraseKey(profileID string) string {
	return passwordPrefix + profileID + "_passphrase"
}

// MemoryStore keeps secrets for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Store(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
