package tape

import (
	"context"
	"strings"
	"sync"
)

// Store persists tapes by name. Implementations must be safe for concurrent
// use.
type Store interface {
	// Load returns the interactions stored under name, or ErrTapeNotFound.
	Load(ctx context.Context, name string) ([]Interaction, error)

	// Save persists the interactions under name, replacing any prior
	// contents.
	Save(ctx context.Context, name string, interactions []Interaction) error
}

// validName reports whether a tape name is safe to use as a storage key.
func validName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, "/\\:*?\"<>|\x00")
}

// MemoryStore is an in-process Store, used as the default when no persistent
// store is configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	tapes map[string][]Interaction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tapes: make(map[string][]Interaction)}
}

// Load returns the interactions stored under name.
func (s *MemoryStore) Load(_ context.Context, name string) ([]Interaction, error) {
	if !validName(name) {
		return nil, ErrInvalidTapeName
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	interactions, ok := s.tapes[name]
	if !ok {
		return nil, ErrTapeNotFound
	}
	return append([]Interaction(nil), interactions...), nil
}

// Save persists the interactions under name.
func (s *MemoryStore) Save(_ context.Context, name string, interactions []Interaction) error {
	if !validName(name) {
		return ErrInvalidTapeName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tapes[name] = append([]Interaction(nil), interactions...)
	return nil
}
