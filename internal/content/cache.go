package content

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of raw documents kept in memory.
const DefaultCacheSize = 512

// CachedStore keeps raw document bytes in process, keyed by Key. Entries are
// dropped only by Put on the same key or by InvalidateTenant; there is no
// time-based expiry. Cached byte slices are shared and must not be modified.
//
// Each tenant scope has a generation bumped by Put and InvalidateTenant. A
// read that started before the bump does not publish what it read.
type CachedStore struct {
	next  Store
	cache *lru.Cache[Key, []byte]

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedStore wraps next with an LRU of the given size.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache, generations: make(map[string]uint64)}, nil
}

func (s *CachedStore) generation(tenantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[tenantID]
}

func (s *CachedStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}
	gen := s.generation(key.TenantID)
	data, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.generations[key.TenantID] == gen {
		s.cache.Add(key, data)
	}
	s.mu.Unlock()
	return data, nil
}

func (s *CachedStore) Put(ctx context.Context, key Key, data []byte) error {
	err := s.next.Put(ctx, key, data)
	s.mu.Lock()
	s.generations[key.TenantID]++
	s.cache.Remove(key)
	s.mu.Unlock()
	return err
}

// InvalidateTenant drops every cached document scoped to tenantID. An empty
// tenantID drops the shared documents.
func (s *CachedStore) InvalidateTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[tenantID]++
	for _, key := range s.cache.Keys() {
		if key.TenantID == tenantID {
			s.cache.Remove(key)
		}
	}
}

// Len reports the number of cached documents.
func (s *CachedStore) Len() int {
	return s.cache.Len()
}
