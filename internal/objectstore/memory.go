package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemoryStore implements Store against a temp directory and an in-memory
// object map. Used by tests and by deployments without a bucket.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	localDir string
}

func NewMemoryStore(localDir string) (*MemoryStore, error) {
	if localDir == "" {
		localDir = filepath.Join(os.TempDir(), "spaces-ai-uploads")
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, err
	}
	return &MemoryStore{objects: map[string][]byte{}, localDir: localDir}, nil
}

func (m *MemoryStore) SaveUpload(_ context.Context, data []byte, filename, userEmail string) (string, string, error) {
	key := ObjectName(userEmail, filename)

	localPath := filepath.Join(m.localDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return "", "", err
	}

	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return localPath, "mem://" + key, nil
}

func (m *MemoryStore) CreatePAR(_ context.Context, objectName string, expire time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[objectName]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if expire <= 0 {
		expire = 15 * time.Minute
	}
	return fmt.Sprintf("mem://%s?expires=%d", objectName, int(expire.Seconds())), nil
}

func (m *MemoryStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectName]; !ok {
		return ErrNotFound
	}
	delete(m.objects, objectName)
	_ = os.Remove(filepath.Join(m.localDir, filepath.FromSlash(objectName)))
	return nil
}

// Get returns a stored object's bytes; test helper.
func (m *MemoryStore) Get(objectName string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[objectName]
	return b, ok
}
