package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SupervisorGranter asks the supervisor for background time. Expiry arrives
// as a task_expired event (see Expire); a local timer set to the granted
// grace covers a supervisor that never sends one, and ends the task on the
// supervisor side before reporting the expiry.
type SupervisorGranter struct {
	client  *SupervisorClient
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	tasks map[string]*supervisedTask
}

type supervisedTask struct {
	name    string
	expired func()
	timer   *time.Timer
}

func NewSupervisorGranter(client *SupervisorClient, logger *zap.Logger) *SupervisorGranter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupervisorGranter{
		client:  client,
		timeout: 3 * time.Second,
		logger:  logger,
		tasks:   make(map[string]*supervisedTask),
	}
}

func (g *SupervisorGranter) BeginBackgroundTask(name string, expired func()) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	grant, err := g.client.BeginTask(ctx, name)
	if err != nil {
		return "", err
	}

	t := &supervisedTask{name: name, expired: expired}
	g.mu.Lock()
	g.tasks[grant.ID] = t
	if grant.GraceSeconds > 0 {
		id := grant.ID
		t.timer = time.AfterFunc(time.Duration(grant.GraceSeconds)*time.Second, func() { g.expireLocal(id) })
	}
	g.mu.Unlock()
	g.logger.Debug("supervisor_task_begin", zap.String("task", name), zap.String("id", grant.ID), zap.Int("grace_s", grant.GraceSeconds))
	return grant.ID, nil
}

func (g *SupervisorGranter) EndBackgroundTask(id string) {
	if g.take(id) == nil {
		return
	}
	g.endRemote(id)
}

// Expire reports that the supervisor revoked task id. Unknown ids are
// ignored, so a late event after EndBackgroundTask is harmless.
func (g *SupervisorGranter) Expire(id string) {
	t := g.take(id)
	if t == nil {
		return
	}
	g.logger.Warn("supervisor_task_expired", zap.String("task", t.name), zap.String("id", id))
	if t.expired != nil {
		t.expired()
	}
}

// expireLocal runs when the grace timer fires first. The supervisor may not
// have noticed, so the grant is released there too.
func (g *SupervisorGranter) expireLocal(id string) {
	t := g.take(id)
	if t == nil {
		return
	}
	g.endRemote(id)
	g.logger.Warn("supervisor_task_grace_elapsed", zap.String("task", t.name), zap.String("id", id))
	if t.expired != nil {
		t.expired()
	}
}

func (g *SupervisorGranter) endRemote(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.client.EndTask(ctx, id); err != nil {
		g.logger.Warn("supervisor_task_end_failed", zap.String("id", id), zap.Error(err))
	}
}

func (g *SupervisorGranter) take(id string) *supervisedTask {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil
	}
	delete(g.tasks, id)
	if t.timer != nil {
		t.timer.Stop()
	}
	return t
}
