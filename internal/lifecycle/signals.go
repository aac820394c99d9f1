package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// SignalSource maps SIGUSR1 to suspend and SIGUSR2 to resume.
type SignalSource struct {
	bridge *Bridge
	logger *zap.Logger
}

func NewSignalSource(bridge *Bridge, logger *zap.Logger) *SignalSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalSource{bridge: bridge, logger: logger}
}

// Run blocks until ctx is done.
func (s *SignalSource) Run(ctx context.Context) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ch)
	s.run(ctx, ch)
}

func (s *SignalSource) run(ctx context.Context, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			s.logger.Debug("lifecycle_signal", zap.String("signal", sig.String()))
			switch sig {
			case syscall.SIGUSR1:
				_ = s.bridge.Suspend(ctx, "signal")
			case syscall.SIGUSR2:
				_ = s.bridge.Resume("signal")
			}
		}
	}
}
