package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Memory is an in-process FileStore. SetFailDeletes makes every Delete fail,
// which lets callers exercise their cleanup paths.
type Memory struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failDeletes error
}

const memoryURLPrefix = "mem://"

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Upload stores the content of r under objectPath.
func (m *Memory) Upload(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectPath] = buf.Bytes()
	return memoryURLPrefix + objectPath, nil
}

// Delete removes the object behind fileURL.
func (m *Memory) Delete(_ context.Context, fileURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeletes != nil {
		return m.failDeletes
	}
	key, err := m.ObjectPathFromURL(fileURL)
	if err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// ObjectPathFromURL strips the mem:// scheme.
func (m *Memory) ObjectPathFromURL(fileURL string) (string, error) {
	key, ok := strings.CutPrefix(fileURL, memoryURLPrefix)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, fileURL)
	}
	return key, nil
}

// SetFailDeletes switches deletion failures on (err != nil) or off.
func (m *Memory) SetFailDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes = err
}

// Has reports whether the object behind fileURL exists.
func (m *Memory) Has(fileURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[strings.TrimPrefix(fileURL, memoryURLPrefix)]
	return ok
}
