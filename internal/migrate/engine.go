// Package migrate upgrades persisted preferences from the format version they
// were written with to the version shipped with the running build.
//
// Each version may register one Step. Migrate walks the versions between the
// stored and the target version in order, applies the registered steps and
// persists the reached version after every iteration, so an interrupted run
// resumes where it stopped.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/park285/goban-state/internal/contract"
	"github.com/park285/goban-state/internal/prefs"
	"go.uber.org/zap"
)

var (
	ErrAlreadyMigrated     = errors.New("factory defaults were registered before migration")
	ErrInconsistentVersion = errors.New("stored preferences version does not match target after migration")
)

type Kind int

const (
	ResultNoOp Kind = iota
	ResultDowngraded
	ResultUpgraded
)

func (k Kind) String() string {
	switch k {
	case ResultNoOp:
		return "noop"
	case ResultDowngraded:
		return "downgraded"
	case ResultUpgraded:
		return "upgraded"
	default:
		return "unknown"
	}
}

// Result describes one Migrate call. Applied counts steps that ran; versions
// without a registered step are not counted.
type Result struct {
	Kind    Kind
	From    int
	To      int
	Applied int
}

type Config struct {
	// Ledger defaults to Ladder(NewUUID).
	Ledger *Ledger
	// NewUUID defaults to uuid.NewString.
	NewUUID func() string
	Logger  *zap.Logger
	// OnViolation receives contract violations. Nil means contract.Panic.
	OnViolation contract.Handler
}

type Engine struct {
	ledger  *Ledger
	newUUID func() string
	logger  *zap.Logger
	violate contract.Handler
}

func New(cfg Config) *Engine {
	e := &Engine{
		ledger:  cfg.Ledger,
		newUUID: cfg.NewUUID,
		logger:  cfg.Logger,
		violate: cfg.OnViolation,
	}
	if e.newUUID == nil {
		e.newUUID = uuid.NewString
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.ledger == nil {
		e.ledger = Ladder(e.newUUID)
	}
	return e
}

func (e *Engine) Ledger() *Ledger { return e.ledger }

// Migrate brings the preferences persisted in p from stored to target. It
// must run once per launch, before factory defaults are registered in p.
//
// A downgrade (stored > target) is reported and nothing is changed. A failing
// step aborts the run; versions persisted up to that point stay persisted.
func (e *Engine) Migrate(ctx context.Context, stored, target int, factory prefs.Dict, p *prefs.Preferences) (Result, error) {
	res := Result{Kind: ResultNoOp, From: stored, To: stored}
	if p.Registered().Has(prefs.VersionKey) {
		return res, contract.Report(e.violate, ErrAlreadyMigrated, "stored=%d target=%d", stored, target)
	}

	switch {
	case stored == target:
		runsTotal.WithLabelValues(ResultNoOp.String()).Inc()
		e.logger.Debug("prefs_migration_noop", zap.Int("version", stored))
		return res, nil
	case stored > target:
		res.Kind = ResultDowngraded
		runsTotal.WithLabelValues(ResultDowngraded.String()).Inc()
		e.logger.Warn("prefs_migration_downgrade",
			zap.Int("stored", stored),
			zap.Int("target", target),
		)
		return res, nil
	}

	res.Kind = ResultUpgraded
	store := p.Store()
	data, err := store.Load(ctx)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("load preferences: %w", err)
	}

	for v := stored + 1; v <= target; v++ {
		step, ok := e.ledger.lookup(v)
		if ok {
			if err := step.fn(data, factory); err != nil {
				runsTotal.WithLabelValues("failed").Inc()
				e.logger.Error("prefs_migration_step_failed",
					zap.Int("version", v),
					zap.String("step", step.name),
					zap.Error(err),
				)
				return res, fmt.Errorf("migration step %d (%s): %w", v, step.name, err)
			}
			data[prefs.VersionKey] = v
			if err := store.Replace(ctx, data); err != nil {
				runsTotal.WithLabelValues("failed").Inc()
				return res, fmt.Errorf("persist version %d: %w", v, err)
			}
			res.Applied++
			stepsTotal.WithLabelValues(strconv.Itoa(v)).Inc()
			e.logger.Info("prefs_migration_step",
				zap.Int("version", v),
				zap.String("step", step.name),
			)
		} else {
			data[prefs.VersionKey] = v
			if err := store.Set(ctx, prefs.VersionKey, v); err != nil {
				runsTotal.WithLabelValues("failed").Inc()
				return res, fmt.Errorf("persist version %d: %w", v, err)
			}
		}
		res.To = v
	}

	got, ok, err := store.Get(ctx, prefs.VersionKey)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("re-read version: %w", err)
	}
	if n, isInt := prefs.ToInt(got); !ok || !isInt || n != target {
		runsTotal.WithLabelValues("inconsistent").Inc()
		e.logger.Error("prefs_migration_inconsistent",
			zap.Any("stored", got),
			zap.Int("target", target),
		)
		return res, ErrInconsistentVersion
	}

	runsTotal.WithLabelValues(ResultUpgraded.String()).Inc()
	e.logger.Info("prefs_migration_done",
		zap.Int("from", stored),
		zap.Int("to", target),
		zap.Int("applied", res.Applied),
	)
	return res, nil
}
