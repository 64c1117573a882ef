package credstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-memory slot store intended for tests and ephemeral runs.
type MemoryStore struct {
	mutex sync.Mutex
	slots map[Kind]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[Kind]string)}
}

// Get returns the value stored in the slot, or ErrSlotEmpty.
func (store *MemoryStore) Get(ctx context.Context, kind Kind) (string, error) {
	if !knownKind(kind) {
		return "", fmt.Errorf("credstore.get.memory: %w", ErrUnknownKind)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	value, ok := store.slots[kind]
	if !ok || value == "" {
		return "", fmt.Errorf("credstore.get.memory: %w", ErrSlotEmpty)
	}
	return value, nil
}

// Set writes the slot, replacing any previous value.
func (store *MemoryStore) Set(ctx context.Context, kind Kind, value string) error {
	if !knownKind(kind) {
		return fmt.Errorf("credstore.set.memory: %w", ErrUnknownKind)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("credstore.set.memory: %w", ErrEmptyValue)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.slots[kind] = value
	return nil
}

// Clear removes one slot. Clearing an absent slot is not an error.
func (store *MemoryStore) Clear(ctx context.Context, kind Kind) error {
	if !knownKind(kind) {
		return fmt.Errorf("credstore.clear.memory: %w", ErrUnknownKind)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.slots, kind)
	return nil
}

// ClearAll removes every slot.
func (store *MemoryStore) ClearAll(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.slots = make(map[Kind]string)
	return nil
}
