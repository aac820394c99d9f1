package lifecycle

import (
	"context"
	"sync"

	"github.com/park285/goban-state/internal/savepoint"
	"go.uber.org/zap"
)

// Suspender is the part of the save-point coordinator driven by lifecycle
// events.
type Suspender interface {
	OnAppSuspending(ctx context.Context) (*savepoint.SuspendToken, error)
	OnAppResuming(token *savepoint.SuspendToken) error
}

// Bridge turns suspend and resume notifications from any source into
// coordinator calls and keeps the token between the two. Repeated
// notifications of the same kind are folded into one.
type Bridge struct {
	target Suspender
	logger *zap.Logger

	mu    sync.Mutex
	token *savepoint.SuspendToken
}

func NewBridge(target Suspender, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{target: target, logger: logger}
}

func (b *Bridge) Suspend(ctx context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != nil {
		return nil
	}
	token, err := b.target.OnAppSuspending(ctx)
	if err != nil {
		b.logger.Warn("lifecycle_suspend_failed", zap.String("source", source), zap.Error(err))
		return err
	}
	b.token = token
	b.logger.Info("lifecycle_suspend", zap.String("source", source), zap.Uint64("token", token.ID()))
	return nil
}

func (b *Bridge) Resume(source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == nil {
		return nil
	}
	if err := b.target.OnAppResuming(b.token); err != nil {
		b.logger.Warn("lifecycle_resume_failed", zap.String("source", source), zap.Error(err))
		return err
	}
	b.logger.Info("lifecycle_resume", zap.String("source", source), zap.Uint64("token", b.token.ID()))
	b.token = nil
	return nil
}

func (b *Bridge) Suspended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token != nil
}

// HandleEvent routes a supervisor event. task_expired goes to expire, which
// may be nil.
func (b *Bridge) HandleEvent(ctx context.Context, ev Event, expire func(id string)) {
	switch ev.Type {
	case EventWillSuspend:
		_ = b.Suspend(ctx, "supervisor")
	case EventDidResume:
		_ = b.Resume("supervisor")
	case EventTaskExpired:
		if expire != nil && ev.TaskID != "" {
			expire(ev.TaskID)
		}
	default:
		b.logger.Debug("lifecycle_event_ignored", zap.String("type", string(ev.Type)))
	}
}
