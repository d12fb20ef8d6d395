package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"gaitserver/internal/domain"
)

// MemStore is an in-memory Store used by tests. It can simulate a storage
// outage per operation via the Fail set.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Fail marks operations ("exists", "get", "put", "delete", "presign")
	// that should report a transport failure.
	Fail map[string]bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}, Fail: map[string]bool{}}
}

// Object returns a copy of the stored bytes and whether the key exists.
func (s *MemStore) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// SetObject stores bytes under key directly, bypassing Put.
func (s *MemStore) SetObject(key string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), b...)
}

func (s *MemStore) failing(op string) error {
	if s.Fail[op] {
		return fmt.Errorf("storage: injected %s failure: %w", op, domain.ErrStorageUnavailable)
	}
	return nil
}

func (s *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("exists"); err != nil {
		return false, err
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("get"); err != nil {
		return nil, err
	}
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("storage: get %s: %w", key, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), b...))), nil
}

func (s *MemStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage: put %s: %v: %w", key, err, domain.ErrStorageUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("put"); err != nil {
		return err
	}
	s.objects[key] = b
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("delete"); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *MemStore) Presign(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing("presign"); err != nil {
		return nil, err
	}
	return url.Parse("memory://bucket/" + key)
}
