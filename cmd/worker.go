package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/collabary/payments/internal/reconciliation"
	"github.com/collabary/payments/internal/webhook"
	"github.com/collabary/payments/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the webhook dispatcher and reconciliation sweeper",
	Long:  `Start the background workers: the durable webhook queue dispatcher and the periodic reconciliation sweeper for payments stuck in processing.`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

func startWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Format)
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := initGormDB(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	services := buildServices(config, gormDB, log)

	dispatcher := webhook.NewDispatcher(
		services.Queue,
		services.Escrow,
		services.Payouts,
		webhook.DispatcherConfig{
			Workers:         config.Webhooks.Workers,
			PollInterval:    config.Webhooks.PollInterval,
			BatchSize:       config.Webhooks.BatchSize,
			MaxAttempts:     config.Webhooks.MaxAttempts,
			RetryBackoff:    config.Webhooks.RetryBackoff,
			StaleClaimAfter: config.Webhooks.StaleClaimAfter,
		},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()

	if config.Reconciliation.Enabled {
		sweeper := reconciliation.NewSweeper(services.Escrow, reconciliation.SweeperConfig{
			SweepInterval: config.Reconciliation.SweepInterval,
			GraceWindow:   config.Reconciliation.GraceWindow,
		}, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Start(ctx)
		}()
	}

	log.Info("worker is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received signal, shutting down worker", "signal", sig)

	cancel()
	wg.Wait()
	log.Info("worker shutdown complete")
}
