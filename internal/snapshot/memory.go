package snapshot

import (
	"context"
	"sync"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
)

// MemoryStore keeps the encoded formats in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot []byte
	moveLog  []byte
	writes   int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) WriteSnapshot(_ context.Context, s *domain.GameSnapshot) error {
	snap, log, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot, m.moveLog = snap, log
	m.writes++
	return nil
}

func (m *MemoryStore) ReadSnapshot(context.Context) (*domain.GameSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decodeSnapshot(m.snapshot)
}

func (m *MemoryStore) ReadMoveLog(context.Context) (*sgf.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decodeMoveLog(m.moveLog)
}

// Writes reports how many snapshots have been written.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// SetRaw replaces the stored bytes as-is. Nil clears a format.
func (m *MemoryStore) SetRaw(snapshot, moveLog []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot, m.moveLog = snapshot, moveLog
}

func (m *MemoryStore) Close() error { return nil }
