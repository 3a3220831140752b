// Package tokenstore holds the session credential for the lifetime of the process.
//
// The store is memory only. It is never persisted, so a leaked credential cannot
// outlive the session that obtained it. The session manager is its only writer;
// the transport's forced clear after a protected-route 401 is the one exception.
package tokenstore

import (
	"strings"
	"sync"

	"github.com/swiftbridge/convert-client/internal/config"
)

// Key is the single slot a store holds.
const Key = config.SessionKey

// Reader is the read side handed to the transport for header injection.
type Reader interface {
	// Get returns the live credential, if any.
	Get() (string, bool)
}

// Clearer is the forced-invalidation path.
type Clearer interface {
	Clear()
}

// Store is the full contract, owned by the session manager.
type Store interface {
	Reader
	Clearer
	Set(credential string)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string, 1)}
}

// Get implements Reader.
func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[Key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Set replaces the credential. The shape is not validated.
func (s *MemoryStore) Set(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[Key] = credential
}

// Clear removes the credential.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, Key)
}

var _ Store = (*MemoryStore)(nil)
