package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/transcribe-service/internal/api/handler"
	"github.com/cuongbtq/transcribe-service/internal/api/router"
	"github.com/cuongbtq/transcribe-service/internal/config"
	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/events"
	"github.com/cuongbtq/transcribe-service/internal/pipeline"
	"github.com/cuongbtq/transcribe-service/internal/registry"
	"github.com/cuongbtq/transcribe-service/shared/logger"
	"github.com/cuongbtq/transcribe-service/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Job events are optional; without them the service runs standalone
	var publisher events.Publisher = events.NopPublisher{}
	var rabbitClient *rabbitmq.Client
	if cfg.Events.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		publisher = events.NewBrokerPublisher(rabbitClient, cfg.Events.PublishTimeout, appLogger.Logger)
		appLogger.Info("Job events enabled", slog.String("exchange", cfg.RabbitMQ.Exchange.Name))
	}

	jobRunner, err := pipeline.NewRunner(cfg, publisher, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	jobs := registry.New(jobRunner, registry.Config{
		MaxActiveJobs: cfg.Jobs.MaxActiveJobs,
		Retention:     cfg.Jobs.Retention,
		SweepInterval: cfg.Jobs.SweepInterval,
		Options: domain.JobOptions{
			KeepPartialOnFailure: cfg.Jobs.KeepPartialOnFailure,
		},
	}, appLogger.Logger)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	jobs.StartJanitor(janitorCtx)

	r := initRouter(cfg, appLogger.Logger, jobs, jobRunner)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	// Running jobs are interrupted and fail; their resources are released before we exit
	jobsCtx, cancelJobs := context.WithTimeout(context.Background(), cfg.Jobs.ShutdownTimeout)
	defer cancelJobs()
	if err := jobs.Shutdown(jobsCtx); err != nil {
		appLogger.Error("Jobs did not stop in time", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   cfg.TimeFormat,
		NoColor:      cfg.NoColor,
	})
}

// initRabbitMQ opens a publish-only client on the job events exchange
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, jobs handler.JobService, oneShot handler.OneShotTranscriber) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	uploadDir := cfg.Media.WorkDir
	if len(cfg.Media.UploadDirs) > 0 {
		uploadDir = cfg.Media.UploadDirs[0]
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:          logger,
		Jobs:            jobs,
		OneShot:         oneShot,
		UploadDir:       uploadDir,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		DefaultLanguage: cfg.Jobs.DefaultLanguage,
		ServiceName:     cfg.App.Name,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
}
