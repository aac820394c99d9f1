package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSubmitRunsSequentially(t *testing.T) {
	e := New("test", nil)
	t.Cleanup(func() { _ = e.Close() })

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Submit(context.Background(), "count", func(ctx context.Context) error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent commands = %d", maxSeen)
	}
}

func TestOwns(t *testing.T) {
	e := New("a", nil)
	other := New("b", nil)
	t.Cleanup(func() { _ = e.Close(); _ = other.Close() })

	if e.Owns(context.Background()) {
		t.Fatalf("background context owned")
	}
	err := e.Submit(context.Background(), "owns", func(ctx context.Context) error {
		if !e.Owns(ctx) {
			return errors.New("executor does not own its own context")
		}
		if other.Owns(ctx) {
			return errors.New("foreign executor owns context")
		}
		return e.Submit(ctx, "nested", func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestPanicBecomesError(t *testing.T) {
	e := New("panic", nil)
	t.Cleanup(func() { _ = e.Close() })

	err := e.Submit(context.Background(), "boom", func(context.Context) error { panic("boom") })
	if err == nil {
		t.Fatalf("expected error from panicking command")
	}
	if err := e.Submit(context.Background(), "after", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("executor dead after panic: %v", err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	e := New("closed", nil)
	_ = e.Close()
	if err := e.Submit(context.Background(), "late", func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
