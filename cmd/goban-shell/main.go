package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/maloquacious/semver"
	appcfg "github.com/park285/goban-state/internal/config"
	"github.com/park285/goban-state/internal/control"
	"github.com/park285/goban-state/internal/lifecycle"
	"github.com/park285/goban-state/internal/obslog"
	"github.com/park285/goban-state/internal/shellbuilder"
	"github.com/park285/goban-state/pkg/shelldto"
	"go.uber.org/zap"
)

var version = semver.Version{Minor: 4, PreRelease: "beta", Build: semver.Commit()}

const (
	commandTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := shellbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}
	logger.Info("prefs_ready",
		zap.String("migration", deps.Launch.Migration.Kind.String()),
		zap.Int("from", deps.Launch.Migration.From),
		zap.Int("to", deps.Launch.Migration.To),
		zap.Int("profile_backups", deps.Launch.ProfileBackups),
		zap.Int("player_backups", deps.Launch.PlayerBackups),
	)
	if _, err := deps.Restore(ctx); err != nil {
		_ = deps.Close()
		logger.Fatal("restore_error", zap.Error(err))
	}

	startedAt := time.Now().UTC()
	srv := control.New(control.Config{
		Game:      deps.Game,
		Runner:    deps.Exec,
		Lifecycle: deps.Bridge,
		Status:    func() shelldto.StatusResponse { return deps.Status(version.String(), startedAt) },
		Defaults:  deps.Settings,
		Messages:  deps.Messages,
		Logger:    logger.Named("control"),
		Timeout:   commandTimeout,
	})
	errCh := make(chan error, 1)
	go func() {
		logger.Info("control_listening", zap.String("addr", cfg.ControlAddr), zap.String("version", version.String()))
		if err := srv.ListenAndServe(cfg.ControlAddr); err != nil {
			errCh <- err
		}
	}()

	signals := lifecycle.NewSignalSource(deps.Bridge, logger.Named("signals"))
	go signals.Run(ctx)

	var feed *lifecycle.EventFeed
	if cfg.SupervisorWSURL != "" {
		feed = connectSupervisorFeed(ctx, cfg, deps, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		logger.Error("control_server_error", zap.Error(err))
	}

	shutdown(deps, srv, feed, logger)
}

func connectSupervisorFeed(ctx context.Context, cfg *appcfg.AppConfig, deps *shellbuilder.Deps, logger *zap.Logger) *lifecycle.EventFeed {
	feed := lifecycle.NewEventFeed(cfg.SupervisorWSURL, 5, logger.Named("supervisor_feed"))
	feed.OnStateChange(func(state lifecycle.FeedState) {
		logger.Info("supervisor_feed_state", zap.String("state", state.String()))
	})
	var expire func(id string)
	if deps.Supervisor != nil {
		expire = deps.Supervisor.Expire
	}
	feed.OnEvent(func(ev lifecycle.Event) {
		deps.Bridge.HandleEvent(ctx, ev, expire)
	})

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := feed.Connect(cctx); err != nil {
		// Suspend and resume still arrive through signals and the control API.
		logger.Warn("supervisor_feed_connect_failed", zap.Error(err))
	}
	return feed
}

// shutdown stops the inputs first, then lifts a held suspension so the
// final save can take the gate.
func shutdown(deps *shellbuilder.Deps, srv *control.Server, feed *lifecycle.EventFeed, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("control_shutdown_error", zap.Error(err))
	}
	if feed != nil {
		_ = feed.Close(ctx)
	}
	if deps.Bridge.Suspended() {
		_ = deps.Bridge.Resume("shutdown")
	}

	err := deps.Exec.Submit(ctx, "final_save", func(ctx context.Context) error {
		return deps.Coordinator.SaveState(ctx)
	})
	switch {
	case err == nil:
		logger.Info("final_save_done")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("final_save_timeout", zap.Error(err))
	default:
		logger.Error("final_save_failed", zap.Error(err))
	}

	if err := deps.Close(); err != nil {
		logger.Warn("close_error", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}
