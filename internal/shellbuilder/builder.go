// Package shellbuilder wires the shell's collaborators from AppConfig.
package shellbuilder

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/park285/goban-state/internal/config"
	"github.com/park285/goban-state/internal/contract"
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/executor"
	"github.com/park285/goban-state/internal/factorydefaults"
	"github.com/park285/goban-state/internal/game"
	"github.com/park285/goban-state/internal/lifecycle"
	"github.com/park285/goban-state/internal/migrate"
	"github.com/park285/goban-state/internal/msgcat"
	"github.com/park285/goban-state/internal/prefs"
	"github.com/park285/goban-state/internal/savepoint"
	"github.com/park285/goban-state/internal/snapshot"
	"github.com/park285/goban-state/pkg/shelldto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Config *config.AppConfig

	Redis     *redis.Client
	Snapshots snapshot.Store
	Prefs     *prefs.Preferences
	Defaults  *factorydefaults.Defaults
	Launch    migrate.LaunchResult

	Exec        *executor.Executor
	Granter     savepoint.BackgroundGranter
	Supervisor  *lifecycle.SupervisorGranter
	Coordinator *savepoint.Coordinator
	Game        *game.Game
	Settings    game.Settings
	Bridge      *lifecycle.Bridge
	Messages    *msgcat.Catalog

	restore savepoint.RestoreResult
	logger  *zap.Logger
}

// New opens the stores, runs the preferences launch sequence and builds the
// coordinator and game. The game is not restored yet; call Restore.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	if cfg.StateBackend == config.BackendRedis || cfg.PrefsBackend == config.BackendRedis {
		opts, err := parseRedisURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.PoolSize = 4
		opts.MinIdleConns = 1
		opts.DialTimeout = 3 * time.Second
		d.Redis = redis.NewClient(opts)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = d.Redis.Ping(pctx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	var err error
	if d.Snapshots, err = openSnapshots(ctx, cfg, d.Redis); err != nil {
		return nil, fmt.Errorf("init state store: %w", err)
	}
	pstore, err := openPrefs(cfg, d.Redis)
	if err != nil {
		return nil, fmt.Errorf("init prefs store: %w", err)
	}
	d.Prefs = prefs.New(pstore)

	var violations contract.Handler = contract.Panic
	if cfg.ContractMode == config.ContractLog {
		violations = contract.LogOnly(logger.Named("contract"))
	}

	if d.Defaults, err = factorydefaults.Load(cfg.DefaultsOverrideDir); err != nil {
		return nil, fmt.Errorf("load factory defaults: %w", err)
	}
	engine := migrate.New(migrate.Config{Logger: logger.Named("migrate"), OnViolation: violations})
	if d.Launch, err = engine.Launch(ctx, d.Defaults.Dict(), d.Prefs); err != nil {
		return nil, fmt.Errorf("prefs launch: %w", err)
	}

	effective, err := d.Prefs.Effective(ctx)
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	d.Settings = SettingsFromPrefs(effective, cfg, logger)

	d.Exec = executor.New("commands", logger.Named("executor"))
	if cfg.SupervisorURL != "" {
		client := lifecycle.NewSupervisorClient(cfg.SupervisorURL)
		d.Supervisor = lifecycle.NewSupervisorGranter(client, logger.Named("supervisor"))
		d.Granter = d.Supervisor
	} else {
		d.Granter = lifecycle.NewLocalGranter(cfg.BackgroundGrace, logger.Named("granter"))
	}

	d.Coordinator, err = savepoint.New(savepoint.Config{
		Store:       d.Snapshots,
		Executor:    d.Exec,
		Granter:     d.Granter,
		Logger:      logger.Named("savepoint"),
		OnViolation: violations,
	})
	if err != nil {
		return nil, err
	}
	if d.Game, err = game.New(d.Coordinator, d.Settings, logger.Named("game")); err != nil {
		return nil, fmt.Errorf("init game: %w", err)
	}
	d.Coordinator.Attach(d.Game)
	d.Bridge = lifecycle.NewBridge(d.Coordinator, logger.Named("lifecycle"))

	if d.Messages, err = msgcat.New(cfg.MessagesDir); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	ok = true
	return d, nil
}

// Restore runs the restore tiers on the command executor.
func (d *Deps) Restore(ctx context.Context) (savepoint.RestoreResult, error) {
	var res savepoint.RestoreResult
	err := d.Exec.Submit(ctx, "restore", func(ctx context.Context) error {
		var rerr error
		res, rerr = d.Coordinator.RestoreState(ctx)
		return rerr
	})
	if err != nil {
		return res, err
	}
	d.restore = res
	if res.Err != nil {
		d.logger.Warn("state_restore_fallback", zap.String("tier", res.Tier.String()), zap.Error(res.Err))
	} else {
		d.logger.Info("state_restored", zap.String("tier", res.Tier.String()))
	}
	return res, nil
}

// Status collects the /status payload.
func (d *Deps) Status(version string, startedAt time.Time) shelldto.StatusResponse {
	st := d.Coordinator.Status()
	out := shelldto.StatusResponse{
		Version:   version,
		StartedAt: startedAt,
		SavePoint: shelldto.SavePointStatus{
			Outstanding: st.Outstanding,
			Dirty:       st.Dirty,
			Saving:      st.Saving,
			Restoring:   st.Restoring,
			Suspended:   st.Suspended,
		},
		Prefs: shelldto.PrefsStatus{
			Version:        d.Launch.Migration.To,
			Migration:      d.Launch.Migration.Kind.String(),
			Applied:        d.Launch.Migration.Applied,
			Downgraded:     d.Launch.Migration.Kind == migrate.ResultDowngraded,
			ProfileBackups: d.Launch.ProfileBackups,
			PlayerBackups:  d.Launch.PlayerBackups,
		},
	}
	if d.restore.Tier != 0 {
		out.RestoreTier = d.restore.Tier.String()
	}
	if !st.LastSave.IsZero() {
		t := st.LastSave
		out.SavePoint.LastSave = &t
	}
	return out
}

// Close stops the executor and closes the stores. It does not save.
func (d *Deps) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if d.Exec != nil {
		keep(d.Exec.Close())
	}
	if d.Snapshots != nil {
		keep(d.Snapshots.Close())
	}
	if d.Redis != nil {
		keep(d.Redis.Close())
	}
	return first
}

func openSnapshots(ctx context.Context, cfg *config.AppConfig, rdb *redis.Client) (snapshot.Store, error) {
	switch cfg.StateBackend {
	case config.BackendFile:
		s, err := snapshot.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return nil, err
		}
		s, err := snapshot.OpenSQLite(ctx, filepath.Join(cfg.StateDir, "state.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		return snapshot.NewRedisStore(rdb), nil
	case config.BackendPostgres:
		s, err := snapshot.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return snapshot.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.StateBackend)
	}
}

func openPrefs(cfg *config.AppConfig, rdb *redis.Client) (prefs.Store, error) {
	switch cfg.PrefsBackend {
	case config.BackendFile:
		s, err := prefs.NewFileStore(cfg.PrefsPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		return prefs.NewRedisStore(rdb), nil
	case config.BackendMemory:
		return prefs.NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unsupported prefs backend %q", cfg.PrefsBackend)
	}
}

// SettingsFromPrefs derives the default game from the NewGame preferences.
// Values the game cannot use fall back to the configured defaults.
func SettingsFromPrefs(p prefs.Dict, cfg *config.AppConfig, logger *zap.Logger) game.Settings {
	s := game.Settings{BoardSize: cfg.DefaultBoardSize, Komi: cfg.DefaultKomi}
	ng, ok := p.Sub("NewGame")
	if !ok {
		return s
	}
	if n, ok := ng.Int("BoardSize"); ok {
		if err := domain.ValidateBoardSize(n); err == nil {
			s.BoardSize = n
		} else {
			logger.Warn("prefs_board_size_ignored", zap.Int("board_size", n))
		}
	}
	if k, ok := ng.Float("Komi"); ok {
		s.Komi = k
	}
	if h, ok := ng.Int("HandicapStones"); ok && (h == 0 || (h >= 2 && h <= 9)) {
		s.Handicap = h
	}
	human, _ := ng.String("HumanPlayerUUID")
	computer, _ := ng.String("ComputerPlayerUUID")
	s.BlackPlayerUUID, s.WhitePlayerUUID = human, computer
	if white, ok := ng.Bool("ComputerPlaysWhite"); ok && !white {
		s.BlackPlayerUUID, s.WhitePlayerUUID = computer, human
	}
	return s
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid db index %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
