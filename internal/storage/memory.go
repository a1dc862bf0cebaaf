package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process bucket for tests and local runs
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	// FailDelete makes Delete fail, for exercising the orphan path
	FailDelete bool
}

// NewMemoryStore creates an empty bucket served from baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = append([]byte(nil), data...)
	return m.baseURL + "/" + key, nil
}

func (m *MemoryStore) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDelete {
		return fmt.Errorf("delete disabled")
	}
	key, err := keyFromURL(m.baseURL, url)
	if err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}

// Keys lists the stored object keys in order
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetFailDelete toggles delete failures
func (m *MemoryStore) SetFailDelete(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailDelete = fail
}
