package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrMalformed = errors.New("malformed preferences")

// Store persists the top level of the preferences tree. Values below the top
// level are written and read as whole sub-trees.
type Store interface {
	Load(ctx context.Context) (Dict, error)
	Replace(ctx context.Context, d Dict) error
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// MemoryStore keeps the preferences in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data Dict
}

func NewMemoryStore(initial Dict) *MemoryStore {
	data := initial.Clone()
	if data == nil {
		data = Dict{}
	}
	return &MemoryStore{data: data}
}

func (m *MemoryStore) Load(context.Context) (Dict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Clone(), nil
}

func (m *MemoryStore) Replace(_ context.Context, d Dict) error {
	next := d.Clone()
	if next == nil {
		next = Dict{}
	}
	m.mu.Lock()
	m.data = next
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return CloneValue(v), ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value any) error {
	m.mu.Lock()
	m.data[key] = CloneValue(value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// FileStore keeps the preferences as one YAML document. Every write rewrites
// the file through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("prefs: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(context.Context) (Dict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *FileStore) loadLocked() (Dict, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Dict{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	d := Dict{}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.path, err)
	}
	if d == nil {
		d = Dict{}
	}
	return d, nil
}

func (f *FileStore) Replace(_ context.Context, d Dict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(d)
}

func (f *FileStore) writeLocked(d Dict) error {
	if d == nil {
		d = Dict{}
	}
	raw, err := yaml.Marshal(map[string]any(d))
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename preferences: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, key string) (any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.loadLocked()
	if err != nil {
		return nil, false, err
	}
	v, ok := d[key]
	return v, ok, nil
}

func (f *FileStore) Set(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.loadLocked()
	if err != nil {
		return err
	}
	d[key] = CloneValue(value)
	return f.writeLocked(d)
}

func (f *FileStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := d[key]; !ok {
		return nil
	}
	delete(d, key)
	return f.writeLocked(d)
}
