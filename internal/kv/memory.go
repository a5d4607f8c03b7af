package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

// Memory is an in-process Store used by tests and deckctl dry runs.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(key, value, ttl)
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.store(key, value, ttl)
	return true, nil
}

func (s *Memory) Update(_ context.Context, key string, ttl time.Duration, fn func(old []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var old []byte
	if e, ok := s.live(key); ok {
		old = e.value
	}
	next, err := fn(old)
	if err != nil {
		return err
	}
	s.store(key, next, ttl)
	return nil
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close() error { return nil }

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (s *Memory) live(key string) (memEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.deadline.IsZero() && !e.deadline.After(time.Now()) {
		delete(s.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (s *Memory) store(key string, value []byte, ttl time.Duration) {
	e := memEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.deadline = time.Now().Add(ttl)
	}
	s.entries[key] = e
}
