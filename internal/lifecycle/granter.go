// Package lifecycle connects the process to the events that suspend and
// resume it: OS signals, an external supervisor, and background-task grants
// that keep a save running after suspension starts.
package lifecycle

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrGraceDisabled = errors.New("background grace period disabled")

// LocalGranter grants every background task the same grace period and
// reports expiry from a timer.
type LocalGranter struct {
	grace  time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*time.Timer
}

func NewLocalGranter(grace time.Duration, logger *zap.Logger) *LocalGranter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalGranter{grace: grace, logger: logger, tasks: make(map[string]*time.Timer)}
}

func (g *LocalGranter) BeginBackgroundTask(name string, expired func()) (string, error) {
	if g.grace <= 0 {
		return "", ErrGraceDisabled
	}
	id := uuid.NewString()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks[id] = time.AfterFunc(g.grace, func() {
		if !g.forget(id) {
			return
		}
		g.logger.Warn("background_task_expired", zap.String("task", name), zap.String("id", id))
		if expired != nil {
			expired()
		}
	})
	g.logger.Debug("background_task_begin", zap.String("task", name), zap.String("id", id), zap.Duration("grace", g.grace))
	return id, nil
}

func (g *LocalGranter) EndBackgroundTask(id string) {
	g.mu.Lock()
	t, ok := g.tasks[id]
	delete(g.tasks, id)
	g.mu.Unlock()
	if ok {
		t.Stop()
		g.logger.Debug("background_task_end", zap.String("id", id))
	}
}

// Outstanding is the number of tasks neither ended nor expired.
func (g *LocalGranter) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *LocalGranter) forget(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tasks[id]; !ok {
		return false
	}
	delete(g.tasks, id)
	return true
}
