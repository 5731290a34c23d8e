package config

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// APIKeyManager rotates explorer API keys.
type APIKeyManager struct {
	apiKeys []string
	current int
	mutex   sync.Mutex
	rng     *rand.Rand
}

// NewAPIKeyManager deduplicates keys and falls back to fallbackKey when none are
// usable. It returns nil when there is no key at all.
func NewAPIKeyManager(apiKeys []string, fallbackKey string) *APIKeyManager {
	seen := make(map[string]bool, len(apiKeys)+1)
	validKeys := make([]string, 0, len(apiKeys)+1)
	for _, key := range append(append([]string(nil), apiKeys...), fallbackKey) {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		validKeys = append(validKeys, key)
	}
	if len(validKeys) == 0 {
		return nil
	}

	manager := &APIKeyManager{
		apiKeys: validKeys,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	manager.current = manager.rng.Intn(len(manager.apiKeys))
	return manager
}

// KeyManager builds the key manager for an explorer section.
func (e Explorer) KeyManager() *APIKeyManager {
	return NewAPIKeyManager(e.APIKeys, e.APIKey)
}

// GetNextKey returns keys round robin.
func (m *APIKeyManager) GetNextKey() string {
	if m == nil || len(m.apiKeys) == 0 {
		return ""
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.current = (m.current + 1) % len(m.apiKeys)
	return m.apiKeys[m.current]
}

func (m *APIKeyManager) GetRandomKey() string {
	if m == nil || len(m.apiKeys) == 0 {
		return ""
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.apiKeys[m.rng.Intn(len(m.apiKeys))]
}

func (m *APIKeyManager) GetKeyCount() int {
	if m == nil {
		return 0
	}
	return len(m.apiKeys)
}

func (m *APIKeyManager) HasKeys() bool {
	return m != nil && len(m.apiKeys) > 0
}
