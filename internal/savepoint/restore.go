package savepoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/goban-state/internal/contract"
	"go.uber.org/zap"
)

type Tier int

const (
	TierSnapshot Tier = iota + 1
	TierMoveLog
	TierFresh
)

func (t Tier) String() string {
	switch t {
	case TierSnapshot:
		return "snapshot"
	case TierMoveLog:
		return "move_log"
	case TierFresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// RestoreResult reports which tier produced the in-memory state. Err holds
// why the tiers above it were skipped; it is nil for TierSnapshot.
type RestoreResult struct {
	Tier Tier
	Err  error
}

// RestoreState loads the persisted state. It must run on the command
// executor: ctx is the context the executor handed to the command.
//
// Tiers are tried once each: the structured snapshot, then a replay of the
// move log, then a fresh game. While restoring, save points and saves are
// ignored. Falling back marks the state dirty so the next save rewrites both
// formats.
func (c *Coordinator) RestoreState(ctx context.Context) (RestoreResult, error) {
	if !c.exec.Owns(ctx) {
		return RestoreResult{}, contract.Report(c.violate, ErrWrongExecutionContext, "")
	}

	c.mu.Lock()
	src := c.source
	if src == nil {
		c.mu.Unlock()
		return RestoreResult{}, ErrNotAttached
	}
	c.restoring.Store(true)
	c.mu.Unlock()

	res := c.restoreTiers(ctx, src)

	c.mu.Lock()
	c.restoring.Store(false)
	if res.Tier != TierSnapshot {
		c.dirty.Store(true)
	}
	c.mu.Unlock()

	restoreTotal.WithLabelValues(res.Tier.String()).Inc()
	fields := []zap.Field{zap.String("tier", res.Tier.String())}
	if res.Err != nil {
		fields = append(fields, zap.NamedError("fallback_cause", res.Err))
	}
	c.logger.Info("savepoint_restored", fields...)
	return res, nil
}

func (c *Coordinator) restoreTiers(ctx context.Context, src StateSource) RestoreResult {
	snap, err := c.store.ReadSnapshot(ctx)
	if err == nil {
		if err = src.Restore(snap); err == nil {
			return RestoreResult{Tier: TierSnapshot}
		}
		err = fmt.Errorf("apply snapshot: %w", err)
	}
	snapErr := fmt.Errorf("snapshot tier: %w", err)
	c.logger.Warn("savepoint_restore_snapshot_failed", zap.Error(err))

	rec, err := c.store.ReadMoveLog(ctx)
	if err == nil {
		if err = src.ReplayMoveLog(rec); err == nil {
			return RestoreResult{Tier: TierMoveLog, Err: snapErr}
		}
		err = fmt.Errorf("replay move log: %w", err)
	}
	c.logger.Warn("savepoint_restore_movelog_failed", zap.Error(err))

	src.Reset()
	return RestoreResult{Tier: TierFresh, Err: errors.Join(snapErr, fmt.Errorf("move log tier: %w", err))}
}
