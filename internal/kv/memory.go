package kv

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/keepershare/internal/common"
)

// MemoryStore keeps everything in a map guarded by a mutex. It is the default
// backend for development and the fake used throughout the tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.data[key]
	switch {
	case old == nil && exists:
		return false, nil
	case old != nil && (!exists || !bytes.Equal(cur, old)):
		return false, nil
	}

	if new == nil {
		delete(m.data, key)
	} else {
		m.data[key] = bytes.Clone(new)
	}
	return true, nil
}

func (m *MemoryStore) SetMany(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		m.data[e.Key] = bytes.Clone(e.Value)
	}
	return nil
}
