package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-process KV and AssetCache. It backs tests and the
// --no-cache mode of the CLI.
type MemStore struct {
	mu     sync.RWMutex
	kv     map[string]string
	assets map[string]Asset
	// Fail, when set, is returned by every write.
	Fail error
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{kv: make(map[string]string), assets: make(map[string]Asset)}
}

// Get implements KV.
func (m *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

// Put implements KV.
func (m *MemStore) Put(ctx context.Context, key, value string) error {
	return m.PutMany(ctx, map[string]string{key: value})
}

// PutMany implements KV.
func (m *MemStore) PutMany(_ context.Context, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	for k, v := range kv {
		m.kv[k] = v
	}
	return nil
}

// Keys lists keys starting with prefix, sorted.
func (m *MemStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// GetAsset implements AssetCache.
func (m *MemStore) GetAsset(_ context.Context, url string) (Asset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[url]
	return a, ok, nil
}

// PutAsset implements AssetCache.
func (m *MemStore) PutAsset(_ context.Context, a Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	a.Body = append([]byte(nil), a.Body...)
	m.assets[a.URL] = a
	return nil
}
