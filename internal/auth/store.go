// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	byDigest map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byDigest: make(map[string]Record)}
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDigest[rec.Digest] = rec
	return nil
}

func (m *MemoryStore) ByTokenKey(_ context.Context, tokenKey string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.byDigest {
		if rec.TokenKey == tokenKey {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDigest, digest)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDigest)
}
