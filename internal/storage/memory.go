package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

type memoryBackend struct {
	mu         sync.RWMutex
	containers map[string]map[string]*Blob
}

// NewMemoryBackend 返回进程内存后端，进程退出后数据丢失。
func NewMemoryBackend() Backend {
	return &memoryBackend{containers: make(map[string]map[string]*Blob)}
}

func (m *memoryBackend) CreateContainer(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[name]; !ok {
		m.containers[name] = make(map[string]*Blob)
	}
	return nil
}

func (m *memoryBackend) Containers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.containers))
	for name := range m.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryBackend) PutBlob(_ context.Context, container, name string, content []byte, props Properties) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	blobs, ok := m.containers[container]
	if !ok {
		return ErrContainerNotFound
	}
	blobs[name] = &Blob{
		Container:  container,
		Name:       name,
		Content:    bytes.Clone(content),
		Properties: props,
	}
	return nil
}

func (m *memoryBackend) GetBlob(_ context.Context, container, name string) (*Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blobs, ok := m.containers[container]
	if !ok {
		return nil, ErrContainerNotFound
	}
	blob, ok := blobs[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	copied := *blob
	copied.Content = bytes.Clone(blob.Content)
	return &copied, nil
}

func (m *memoryBackend) DeleteBlob(_ context.Context, container, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	blobs, ok := m.containers[container]
	if !ok {
		return ErrContainerNotFound
	}
	if _, ok := blobs[name]; !ok {
		return ErrBlobNotFound
	}
	delete(blobs, name)
	return nil
}

func (m *memoryBackend) Close() error {
	return nil
}
