package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/account"
	accountpg "github.com/collabary/payments/internal/account/postgres"
	"github.com/collabary/payments/internal/auth"
	"github.com/collabary/payments/internal/collaboration"
	"github.com/collabary/payments/internal/core/events"
	"github.com/collabary/payments/internal/escrow"
	escrowpg "github.com/collabary/payments/internal/escrow/postgres"
	"github.com/collabary/payments/internal/invoice"
	invoicepg "github.com/collabary/payments/internal/invoice/postgres"
	"github.com/collabary/payments/internal/notification"
	"github.com/collabary/payments/internal/payout"
	payoutpg "github.com/collabary/payments/internal/payout/postgres"
	"github.com/collabary/payments/internal/processor"
	"github.com/collabary/payments/internal/transport/rest"
	"github.com/collabary/payments/internal/wallet"
	walletpg "github.com/collabary/payments/internal/wallet/postgres"
	"github.com/collabary/payments/internal/webhook"
	webhookpg "github.com/collabary/payments/internal/webhook/postgres"
	"github.com/collabary/payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Services struct {
	Accounts *account.Service
	Wallets  *wallet.Service
	Escrow   *escrow.Service
	Payouts  *payout.Service
	Invoices *invoice.Service
	Queue    webhook.Queue
	Auth     *auth.Service
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Router   *chi.Mux
	Services *Services
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	handlers := rest.Handlers{
		Account:       account.NewHandler(deps.Services.Accounts, deps.Logger),
		Wallet:        wallet.NewHandler(deps.Services.Wallets, deps.Logger),
		Escrow:        escrow.NewHandler(deps.Services.Escrow, deps.Logger),
		Payout:        payout.NewHandler(deps.Services.Payouts, deps.Logger),
		Invoice:       invoice.NewHandler(deps.Services.Invoices, deps.Logger),
		Collaboration: collaboration.NewHandler(collaboration.NewService(deps.Services.Escrow, deps.Logger), deps.Logger),
		Webhook:       webhook.NewHandler(deps.Services.Queue, deps.Config.Processor.WebhookSecret, deps.Logger),
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Services.Auth, handlers, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format)
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGormDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	services := buildServices(config, gormDB, log)

	return &Dependencies{
		Config:   config,
		DB:       db,
		GormDB:   gormDB,
		Router:   chi.NewRouter(),
		Services: services,
		Logger:   log,
	}, nil
}

// buildServices wires the domain services over one gorm handle. The
// worker process reuses this wiring without the HTTP surface.
func buildServices(config *internal.Config, gormDB *gorm.DB, log *slog.Logger) *Services {
	eventBus := events.NewEventBus(log)
	notification.NewNotifier(log).Register(eventBus)

	processorClient := processor.NewClient(processor.Config{
		APIURL:  config.Processor.APIURL,
		APIKey:  config.Processor.APIKey,
		Timeout: config.Processor.Timeout,
	}, log)

	accountService := account.NewService(accountpg.NewUserRepository(gormDB), log)
	walletService := wallet.NewService(walletpg.NewWalletRepository(gormDB, config.Processor.Currency), log)

	paymentRepo := escrowpg.NewPaymentRepository(gormDB)

	escrowService := escrow.NewService(
		paymentRepo,
		accountService,
		processorClient,
		eventBus,
		config.Processor.Currency,
		log,
	)

	payoutService := payout.NewService(
		payoutpg.NewPayoutRepository(gormDB),
		accountService,
		walletService,
		processorClient,
		eventBus,
		config.Processor.Currency,
		config.Payouts.MinimumCents,
		log,
	)

	invoiceService := invoice.NewService(invoicepg.NewInvoiceRepository(gormDB), paymentRepo, log)
	invoiceService.Register(eventBus)

	return &Services{
		Accounts: accountService,
		Wallets:  walletService,
		Escrow:   escrowService,
		Payouts:  payoutService,
		Invoices: invoiceService,
		Queue:    webhookpg.NewQueueRepository(gormDB),
		Auth:     auth.NewService(config.Security.JWTSecret, config.Security.AccessTokenDuration, log),
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGormDB layers gorm over the already pooled pgx connection.
func initGormDB(db *sqlx.DB) (*gorm.DB, error) {
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}
	return gormDB, nil
}
