package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileStoreQuota caps the serialized size of the flat store. The
// store class it models is small and capped; tokens fit comfortably, bulk
// data does not.
const DefaultFileStoreQuota = 8 * 1024

// FileStore is the flat, synchronous key-value store of the pair (StoreB
// class): simple and fast but capped and more volatile, the first thing an
// OS reclaims under pressure.
type FileStore struct {
	mu    sync.Mutex
	path  string
	quota int
}

// NewFileStore creates a FileStore at path. quota <= 0 uses
// DefaultFileStoreQuota.
func NewFileStore(path string, quota int) (*FileStore, error) {
	if quota <= 0 {
		quota = DefaultFileStoreQuota
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create credential store directory: %w", err)
	}
	return &FileStore{path: path, quota: quota}, nil
}

// Get implements Store.Get.
func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", err
	}
	value, ok := data[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements Store.Set. Writes exceeding the quota fail with
// ErrQuotaExceeded and leave the store unchanged.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value

	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if len(encoded) > s.quota {
		return ErrQuotaExceeded
	}
	return os.WriteFile(s.path, encoded, 0o600)
}

// Delete implements Store.Delete.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)

	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, encoded, 0o600)
}

// Keys implements Store.Keys.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Ping implements Store.Ping by checking the backing directory is usable.
func (s *FileStore) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.load()
	return err
}

// load reads the whole store; a missing file is an empty store.
func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	data := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			// A corrupt file reads as empty rather than wedging the store.
			return map[string]string{}, nil
		}
	}
	return data, nil
}

var _ Store = (*FileStore)(nil)
