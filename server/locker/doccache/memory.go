package doccache

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}}
}

func (s *MemoryStore) Get(_ context.Context, docID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[docID]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(blob), true, nil
}

func (s *MemoryStore) Put(_ context.Context, docID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[docID] = bytes.Clone(blob)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = map[string][]byte{}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *MemoryStore) Close() error {
	return nil
}
