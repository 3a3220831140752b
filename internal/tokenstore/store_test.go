package tokenstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_SetGetClear(t *testing.T) {
	s := NewMemoryStore()

	_, ok := s.Get()
	assert.False(t, ok, "new store must be empty")

	s.Set("abc123")
	got, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "abc123", got)

	s.Set("def456")
	got, _ = s.Get()
	assert.Equal(t, "def456", got, "set replaces, at most one credential")

	s.Clear()
	_, ok = s.Get()
	assert.False(t, ok)

	s.Clear() // idempotent
}

func TestMemoryStore_BlankIsAbsent(t *testing.T) {
	s := NewMemoryStore()
	s.Set("   ")
	_, ok := s.Get()
	assert.False(t, ok)
}

func TestMemoryStore_NoShapeValidation(t *testing.T) {
	s := NewMemoryStore()
	s.Set("not.a.jwt at all")
	got, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "not.a.jwt at all", got)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("token")
		}()
		go func() {
			defer wg.Done()
			s.Get()
			s.Clear()
		}()
	}
	wg.Wait()
}
