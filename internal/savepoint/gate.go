package savepoint

import (
	"context"
	"sync/atomic"
)

// gate is the binary, non-reentrant lock shared by snapshot writes and the
// suspension handler. Unlike sync.Mutex, acquisition can be abandoned with a
// context, and a holder other than the acquiring goroutine may release it.
type gate struct {
	ch chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{}, 1)}
}

func (g *gate) acquire(ctx context.Context) error {
	select {
	case g.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	select {
	case <-g.ch:
	default:
	}
}

func (g *gate) held() bool { return len(g.ch) == 1 }

var tokenSeq atomic.Uint64

// SuspendToken identifies the suspension that holds the gate. Only the token
// returned by OnAppSuspending can release it.
type SuspendToken struct {
	id uint64
}

func newSuspendToken() *SuspendToken {
	return &SuspendToken{id: tokenSeq.Add(1)}
}

func (t *SuspendToken) ID() uint64 {
	if t == nil {
		return 0
	}
	return t.id
}
