// Package savepoint decides when the in-memory game may be written to
// persistent storage.
//
// Mutators bracket their changes with BeginSavePoint and CommitSavePoint. When
// the last open bracket commits and the state is dirty, the coordinator writes
// a snapshot on the committing goroutine. A gate shared with the suspension
// handler guarantees that no write starts between OnAppSuspending and
// OnAppResuming.
package savepoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/goban-state/internal/contract"
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
	"go.uber.org/zap"
)

var (
	ErrUnbalancedCommit      = errors.New("commit without matching begin")
	ErrSaveDuringMutation    = errors.New("save attempted while a save point is open")
	ErrWrongExecutionContext = errors.New("restore must run on the command executor")
	ErrGateNotHeld           = errors.New("resume token does not hold the save gate")
	ErrNotAttached           = errors.New("no state source attached")
)

// Persistence is the storage collaborator. snapshot.Store satisfies it.
type Persistence interface {
	WriteSnapshot(ctx context.Context, s *domain.GameSnapshot) error
	ReadSnapshot(ctx context.Context) (*domain.GameSnapshot, error)
	ReadMoveLog(ctx context.Context) (*sgf.Record, error)
}

// StateSource is the in-memory state the coordinator saves and restores.
// Snapshot must not open a save point.
type StateSource interface {
	Snapshot() *domain.GameSnapshot
	Restore(s *domain.GameSnapshot) error
	ReplayMoveLog(r *sgf.Record) error
	Reset()
}

// BackgroundGranter hands out OS grace periods during suspension. expired is
// called at most once when the grace period runs out.
type BackgroundGranter interface {
	BeginBackgroundTask(name string, expired func()) (string, error)
	EndBackgroundTask(id string)
}

// ExecutionContext tells whether a context belongs to the sequential command
// executor. *executor.Executor satisfies it.
type ExecutionContext interface {
	Owns(ctx context.Context) bool
}

type Config struct {
	Store    Persistence
	Executor ExecutionContext
	Granter  BackgroundGranter
	Logger   *zap.Logger
	// OnViolation receives contract violations. Nil means contract.Panic.
	OnViolation contract.Handler
}

type Coordinator struct {
	store   Persistence
	exec    ExecutionContext
	granter BackgroundGranter
	logger  *zap.Logger
	violate contract.Handler

	// mu serialises begin, commit, markDirty and save. The fields below are
	// written only under mu; they are atomics so Status can read them while a
	// commit waits on the gate.
	mu          sync.Mutex
	source      StateSource
	outstanding atomic.Int64
	dirty       atomic.Bool
	restoring   atomic.Bool
	saving      atomic.Bool
	lastSave    atomic.Pointer[time.Time]

	gate        *gate
	suspendMu   sync.Mutex
	suspended   *SuspendToken
	isSuspended atomic.Bool
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("savepoint: store required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("savepoint: executor required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	violate := cfg.OnViolation
	if violate == nil {
		violate = contract.Panic
	}
	return &Coordinator{
		store:   cfg.Store,
		exec:    cfg.Executor,
		granter: cfg.Granter,
		logger:  logger,
		violate: violate,
		gate:    newGate(),
	}, nil
}

// Attach sets the state the coordinator saves. It must be called before the
// first restore or save.
func (c *Coordinator) Attach(src StateSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
}

func (c *Coordinator) BeginSavePoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoring.Load() {
		return
	}
	n := c.outstanding.Add(1)
	outstandingBegins.Set(float64(n))
}

// CommitSavePoint closes one bracket. Closing the last one saves the state on
// the calling goroutine, which may block while the app is suspended.
func (c *Coordinator) CommitSavePoint(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoring.Load() {
		return nil
	}
	if c.outstanding.Load() == 0 {
		return contract.Report(c.violate, ErrUnbalancedCommit, "")
	}
	n := c.outstanding.Add(-1)
	outstandingBegins.Set(float64(n))
	if n > 0 {
		return nil
	}
	return c.saveLocked(ctx)
}

func (c *Coordinator) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoring.Load() {
		return
	}
	c.dirty.Store(true)
}

// SaveState writes a snapshot if the state is dirty.
func (c *Coordinator) SaveState(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx)
}

func (c *Coordinator) saveLocked(ctx context.Context) error {
	if c.restoring.Load() || !c.dirty.Load() {
		return nil
	}
	if n := c.outstanding.Load(); n != 0 {
		return contract.Report(c.violate, ErrSaveDuringMutation, "outstanding=%d", n)
	}
	if c.source == nil {
		return ErrNotAttached
	}

	if err := c.gate.acquire(ctx); err != nil {
		savesTotal.WithLabelValues("gate_timeout").Inc()
		return fmt.Errorf("wait for save gate: %w", err)
	}
	defer c.gate.release()
	c.saving.Store(true)
	defer c.saving.Store(false)

	c.dirty.Store(false)
	snap := c.source.Snapshot()
	start := time.Now()
	err := c.store.WriteSnapshot(ctx, snap)
	elapsed := time.Since(start)
	saveDuration.Observe(elapsed.Seconds())
	if err != nil {
		savesTotal.WithLabelValues("error").Inc()
		c.logger.Error("savepoint_save_failed", zap.Error(err), zap.Int("moves", len(snap.Moves)), zap.Duration("elapsed", elapsed))
		return fmt.Errorf("write snapshot: %w", err)
	}
	now := time.Now()
	c.lastSave.Store(&now)
	savesTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("savepoint_save", zap.Int("moves", len(snap.Moves)), zap.Duration("elapsed", elapsed))
	return nil
}

// OnAppSuspending prepares for suspension and returns holding the save gate.
// A second call before OnAppResuming returns the token already held.
func (c *Coordinator) OnAppSuspending(ctx context.Context) (*SuspendToken, error) {
	c.suspendMu.Lock()
	defer c.suspendMu.Unlock()
	if c.suspended != nil {
		return c.suspended, nil
	}

	if c.saving.Load() {
		if err := c.waitForSaveInBackground(ctx); err != nil {
			return nil, err
		}
	} else if err := c.settleAndHoldGate(ctx); err != nil {
		return nil, err
	}

	c.suspended = newSuspendToken()
	c.isSuspended.Store(true)
	c.logger.Info("savepoint_suspended", zap.Uint64("token", c.suspended.id))
	return c.suspended, nil
}

// waitForSaveInBackground covers a write already in flight: it asks for a
// grace period and takes the gate once the write releases it.
func (c *Coordinator) waitForSaveInBackground(ctx context.Context) error {
	if c.granter != nil {
		task := &graceTask{granter: c.granter}
		// The expiry callback only releases; it never asks for more time.
		id, err := c.granter.BeginBackgroundTask("savepoint_save", func() {
			backgroundTasksTotal.WithLabelValues("expired").Inc()
			c.logger.Warn("savepoint_background_expired")
			task.end()
		})
		if err != nil {
			backgroundTasksTotal.WithLabelValues("denied").Inc()
			c.logger.Warn("savepoint_background_denied", zap.Error(err))
		} else {
			backgroundTasksTotal.WithLabelValues("granted").Inc()
			task.started(id)
			defer task.end()
		}
	}

	if err := c.gate.acquire(ctx); err != nil {
		return fmt.Errorf("wait for in-flight save: %w", err)
	}
	return nil
}

// graceTask ends a background task exactly once, whether the save finishes
// first or the grant expires first.
type graceTask struct {
	granter BackgroundGranter
	mu      sync.Mutex
	id      string
	ended   bool
}

func (t *graceTask) started(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		// Expired before the grant call returned.
		t.granter.EndBackgroundTask(id)
		return
	}
	t.id = id
}

func (t *graceTask) end() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.ended = true
	if t.id != "" {
		t.granter.EndBackgroundTask(t.id)
	}
}

func (c *Coordinator) settleAndHoldGate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.restoring.Load():
	case c.outstanding.Load() > 0:
		// An open bracket is abandoned rather than saved half-done.
		c.logger.Info("savepoint_suspend_abandons_mutation", zap.Int64("outstanding", c.outstanding.Load()))
	case c.dirty.Load():
		if err := c.saveLocked(ctx); err != nil {
			c.logger.Warn("savepoint_suspend_save_failed", zap.Error(err))
		}
	}

	// Taken while mu is held so no write can slip in between.
	if err := c.gate.acquire(ctx); err != nil {
		return fmt.Errorf("acquire save gate: %w", err)
	}
	return nil
}

// OnAppResuming releases the gate held by token. Resuming while not
// suspended does nothing. While suspended, any token other than the one
// OnAppSuspending returned, nil included, is a violation and the gate stays
// held.
func (c *Coordinator) OnAppResuming(token *SuspendToken) error {
	c.suspendMu.Lock()
	defer c.suspendMu.Unlock()
	if c.suspended == nil {
		return nil
	}
	if token == nil {
		return contract.Report(c.violate, ErrGateNotHeld, "token=nil holder=%d", c.suspended.id)
	}
	if token != c.suspended {
		return contract.Report(c.violate, ErrGateNotHeld, "token=%d holder=%d", token.id, c.suspended.id)
	}
	c.suspended = nil
	c.isSuspended.Store(false)
	c.gate.release()
	c.logger.Info("savepoint_resumed", zap.Uint64("token", token.id))
	return nil
}

type Status struct {
	Outstanding int64
	Dirty       bool
	Saving      bool
	Restoring   bool
	Suspended   bool
	LastSave    time.Time
}

func (c *Coordinator) Status() Status {
	st := Status{
		Outstanding: c.outstanding.Load(),
		Dirty:       c.dirty.Load(),
		Saving:      c.saving.Load(),
		Restoring:   c.restoring.Load(),
		Suspended:   c.isSuspended.Load(),
	}
	if t := c.lastSave.Load(); t != nil {
		st.LastSave = *t
	}
	return st
}
