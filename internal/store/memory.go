package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Updates are serialized by a single mutex.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (m *Memory) Put(_ context.Context, key string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), doc...)
	return nil
}

func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur []byte
	if doc, ok := m.docs[key]; ok {
		cur = append([]byte(nil), doc...)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	m.docs[key] = next
	return nil
}

func (m *Memory) Close() error { return nil }
