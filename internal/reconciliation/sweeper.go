package reconciliation

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler is the slice of the escrow service the sweeper drives.
type Reconciler interface {
	ReconcileProcessing(ctx context.Context, graceWindow time.Duration, limit int) error
}

type SweeperConfig struct {
	SweepInterval time.Duration
	GraceWindow   time.Duration
	BatchSize     int
}

// Sweeper periodically re-checks payments stuck in processing against
// the processor's view. It is the safety net for lost webhooks: any
// intent that settled while our delivery was down gets picked up on the
// next sweep.
type Sweeper struct {
	reconciler Reconciler
	config     SweeperConfig
	logger     *slog.Logger
}

func NewSweeper(reconciler Reconciler, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	if config.GraceWindow <= 0 {
		config.GraceWindow = 15 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}

	return &Sweeper{
		reconciler: reconciler,
		config:     config,
		logger:     logger,
	}
}

// Start runs the sweep loop until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("reconciliation sweeper starting",
		"sweep_interval", s.config.SweepInterval,
		"grace_window", s.config.GraceWindow)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.reconciler.ReconcileProcessing(ctx, s.config.GraceWindow, s.config.BatchSize); err != nil {
		s.logger.Error("reconciliation sweep failed", "error", err)
	}
}
