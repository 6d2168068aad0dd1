package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"eventfinder/internal/atomicfile"
	appLog "eventfinder/internal/log"
)

var (
	// ErrNotFound is returned by Storage.Get for a missing key.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned by Storage.Set when the write would grow
	// the store past its size limit.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	errCorrupt = errors.New("corrupt preferences file")
)

// Storage is a flat string key-value store holding serialized blobs.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStorage keeps values in a map. MaxBytes, if positive, caps the sum
// of key and value lengths.
type MemoryStorage struct {
	MaxBytes int

	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if m.MaxBytes > 0 && sizeWith(m.values, key, value) > m.MaxBytes {
		return fmt.Errorf("%w: %d byte limit", ErrQuotaExceeded, m.MaxBytes)
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileStorage persists all keys as one JSON object in a single file.
// Every Set and Remove rewrites the file atomically (temp file + rename),
// the same way config.Save does.
type FileStorage struct {
	path     string
	maxBytes int

	mu sync.Mutex
}

// NewFileStorage stores keys in path. maxBytes <= 0 disables the quota.
func NewFileStorage(path string, maxBytes int) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("preferences path is empty")
	}
	return &FileStorage{path: path, maxBytes: maxBytes}, nil
}

func (f *FileStorage) Path() string { return f.path }

func (f *FileStorage) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.readForWrite()
	if err != nil {
		return err
	}
	if f.maxBytes > 0 && sizeWith(values, key, value) > f.maxBytes {
		return fmt.Errorf("%w: %d byte limit", ErrQuotaExceeded, f.maxBytes)
	}
	values[key] = value
	return f.write(values)
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.readForWrite()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.write(values)
}

func (f *FileStorage) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", errCorrupt, f.path, err)
	}
	return values, nil
}

// readForWrite is read for Set and Remove. A file that does not decode is
// moved aside to <path>.corrupt and writing starts over from an empty map.
func (f *FileStorage) readForWrite() (map[string]string, error) {
	values, err := f.read()
	if !errors.Is(err, errCorrupt) {
		return values, err
	}
	aside := f.path + ".corrupt"
	if rerr := os.Rename(f.path, aside); rerr != nil {
		return nil, fmt.Errorf("move aside %s: %w", f.path, rerr)
	}
	appLog.Warn("corrupt preferences file moved aside", "err", err, "moved_to", aside)
	return make(map[string]string), nil
}

func (f *FileStorage) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(f.path, data, 0o600)
}

func sizeWith(values map[string]string, key, value string) int {
	n := len(key) + len(value)
	for k, v := range values {
		if k == key {
			continue
		}
		n += len(k) + len(v)
	}
	return n
}
