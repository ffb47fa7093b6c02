package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/application/service"
	"github.com/garyjia/ringiflow/internal/config"
	"github.com/garyjia/ringiflow/internal/infrastructure/external/lark"
	"github.com/garyjia/ringiflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/ringiflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/ringiflow/internal/infrastructure/worker"
	httpserver "github.com/garyjia/ringiflow/internal/interfaces/http"
	"github.com/garyjia/ringiflow/pkg/database"
	"github.com/garyjia/ringiflow/pkg/utils"
)

func main() {
	// Load .env if present, then configuration
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting RingiFlow approval engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories and transaction manager
	txManager := sqlite.NewDB(db.DB, logger)
	definitionRepo := repository.NewDefinitionRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	stepRepo := repository.NewStepRepository(db.DB, logger)
	sequenceRepo := repository.NewSequenceRepository(db.DB, logger)

	// Initialize notifier when Lark is enabled
	var notifier port.Notifier
	if cfg.Lark.Enabled {
		larkClient := lark.NewClient(lark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
		notifier = lark.NewNotifier(larkClient, logger)
		logger.Info("Lark notifications enabled")
	} else {
		logger.Info("Lark notifications disabled")
	}

	// Initialize application service
	sugar := &sugaredLogger{logger.Sugar()}
	workflowService := service.NewWorkflowService(
		definitionRepo,
		instanceRepo,
		stepRepo,
		sequenceRepo,
		txManager,
		notifier,
		sugar,
	)

	// Initialize background workers
	workerManager := worker.NewWorkerManager(logger)
	if notifier != nil {
		workerManager.Register(worker.NewReminderWorker(
			worker.ReminderWorkerConfig{
				PollInterval: cfg.Worker.ReminderInterval,
				ReminderAge:  cfg.Worker.ReminderAge,
			},
			stepRepo,
			instanceRepo,
			notifier,
			logger,
		))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// Initialize HTTP server
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, workflowService, sugar)

	// Run server until interrupted
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}

	cancel()
	if err := workerManager.StopAll(); err != nil {
		logger.Error("Failed to stop workers", zap.Error(err))
	}
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// sugaredLogger adapts zap's sugared logger to the keysAndValues interfaces
// of the service and http packages.
type sugaredLogger struct {
	sugar *zap.SugaredLogger
}

func (l *sugaredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *sugaredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}
