package objstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. It records every Put so tests can assert
// on writes.
//
// Thread-safety: Memory is safe for concurrent use via internal mutex.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string

	// FailOn makes the named operation ("list", "get", "put") fail.
	FailOn map[string]error
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) fail(op, key string) error {
	if err, ok := m.FailOn[op]; ok {
		return &StoreError{Op: op, Key: key, Err: err}
	}
	return nil
}

// List returns keys under prefix in lexical order.
func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list", prefix); err != nil {
		return nil, err
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns a copy of the object under key.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get", key); err != nil {
		return nil, err
	}
	body, ok := m.objects[key]
	if !ok {
		return nil, &StoreError{Op: "get", Key: key, Err: ErrNotFound}
	}
	return append([]byte(nil), body...), nil
}

// Put stores a copy of body under key.
func (m *Memory) Put(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("put", key); err != nil {
		return err
	}
	m.objects[key] = append([]byte(nil), body...)
	m.puts = append(m.puts, key)
	return nil
}

// Puts returns the keys written so far, in write order.
func (m *Memory) Puts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}
