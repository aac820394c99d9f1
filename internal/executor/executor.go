// Package executor runs long commands one at a time on a dedicated goroutine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("executor closed")

const defaultQueueSize = 16

type ctxKey struct{}

type command struct {
	ctx  context.Context
	name string
	fn   func(ctx context.Context) error
	done chan error
}

type Executor struct {
	name   string
	logger *zap.Logger
	queue  chan command

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(name string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		name:   name,
		logger: logger,
		queue:  make(chan command, defaultQueueSize),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer e.wg.Done()
	for cmd := range e.queue {
		if err := cmd.ctx.Err(); err != nil {
			cmd.done <- err
			continue
		}
		cmd.done <- e.run(cmd)
	}
}

func (e *Executor) run(cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor_command_panic", zap.String("executor", e.name), zap.String("command", cmd.name), zap.Any("panic", r))
			err = fmt.Errorf("command %s panicked: %v", cmd.name, r)
		}
	}()
	return cmd.fn(context.WithValue(cmd.ctx, ctxKey{}, e))
}

// Submit runs fn on the executor and waits for its result. A caller already
// running on this executor gets fn run inline; queueing would deadlock.
func (e *Executor) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if e.Owns(ctx) {
		return fn(ctx)
	}

	done := make(chan error, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	select {
	case e.queue <- command{ctx: ctx, name: name, fn: fn, done: done}:
		e.mu.Unlock()
	case <-ctx.Done():
		e.mu.Unlock()
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Owns reports whether ctx was handed out by this executor.
func (e *Executor) Owns(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(ctxKey{}).(*Executor)
	return owner == e
}

// Close stops accepting commands, lets queued ones finish and waits for the
// loop to exit.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}
