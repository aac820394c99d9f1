package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
)

const (
	snapshotFile = "state.json"
	moveLogFile  = "backup.sgf"
)

// FileStore keeps state.json and backup.sgf in one directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Dir() string { return f.dir }

// WriteSnapshot writes the move log first, so an interrupted write leaves a
// move log at least as new as the snapshot.
func (f *FileStore) WriteSnapshot(_ context.Context, s *domain.GameSnapshot) error {
	snap, log, err := encode(s)
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(f.dir, moveLogFile), log); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(f.dir, snapshotFile), snap)
}

func (f *FileStore) ReadSnapshot(context.Context) (*domain.GameSnapshot, error) {
	raw, err := f.read(snapshotFile)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

func (f *FileStore) ReadMoveLog(context.Context) (*sgf.Record, error) {
	raw, err := f.read(moveLogFile)
	if err != nil {
		return nil, err
	}
	return decodeMoveLog(raw)
}

func (f *FileStore) read(name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return raw, nil
}

func (f *FileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
