// ABOUTME: Plain JSON file backend for low-sensitivity preferences
// ABOUTME: Lazy-loaded map persisted atomically via temp file rename

package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a Backend persisting values as a JSON object in a plain
// file. Suitable for preferences (theme, language), not secrets.
type FileStore struct {
	path   string
	mu     sync.Mutex
	values map[string]string // nil until first load
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	f.values[key] = value
	return f.persist()
}

func (f *FileStore) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	delete(f.values, key)
	return f.persist()
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[string]string)
	return f.persist()
}

// load reads the file once per instance; a missing file is an empty store.
// Must be called while holding f.mu.
func (f *FileStore) load() error {
	if f.values != nil {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.values = make(map[string]string)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	f.values = values
	return nil
}

// persist writes the map atomically. Must be called while holding f.mu.
func (f *FileStore) persist() error {
	data, err := json.Marshal(f.values)
	if err != nil {
		return err
	}
	return atomicWrite(f.path, data, 0o644)
}

// atomicWrite writes to a temp file in the target directory and renames it
// into place so readers never observe a partial file.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
