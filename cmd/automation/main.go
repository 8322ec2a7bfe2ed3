// Package main is the entry point for the automation server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pipeboard/automation/pkg/api"
	"github.com/pipeboard/automation/pkg/config"
	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/executor"
	"github.com/pipeboard/automation/pkg/logging"
	"github.com/pipeboard/automation/pkg/scripting"
	"github.com/pipeboard/automation/pkg/storage"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/utils"
	"github.com/pipeboard/automation/pkg/workflow"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "automation"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Application failed: %v", err)
		}
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Fatalf("Error during shutdown: %v", err)
		}
	}
}

// loadConfig loads the configuration from the specified path or creates a default one
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".automation", "config.json"),
			"/etc/automation/config.json",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		if cfg == nil {
			cfg = config.DefaultConfig()

			defaultPath := filepath.Join(os.Getenv("HOME"), ".automation", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}

			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	overrideConfigFromEnv(cfg)

	return cfg, nil
}

// overrideConfigFromEnv overrides configuration values from environment variables
func overrideConfigFromEnv(cfg *config.Config) {
	if host := os.Getenv("AUTOMATION_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("AUTOMATION_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if storageType := os.Getenv("AUTOMATION_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}

	if host := os.Getenv("AUTOMATION_POSTGRES_HOST"); host != "" {
		cfg.Storage.Postgres.Host = host
	}
	if port := os.Getenv("AUTOMATION_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Storage.Postgres.Port = p
		}
	}
	if database := os.Getenv("AUTOMATION_POSTGRES_DATABASE"); database != "" {
		cfg.Storage.Postgres.Database = database
	}
	if user := os.Getenv("AUTOMATION_POSTGRES_USER"); user != "" {
		cfg.Storage.Postgres.User = user
	}
	if password := os.Getenv("AUTOMATION_POSTGRES_PASSWORD"); password != "" {
		cfg.Storage.Postgres.Password = password
	}
	if sslMode := os.Getenv("AUTOMATION_POSTGRES_SSL_MODE"); sslMode != "" {
		cfg.Storage.Postgres.SSLMode = sslMode
	}

	if addr := os.Getenv("AUTOMATION_REDIS_ADDR"); addr != "" {
		cfg.Storage.Redis.Addr = addr
	}
	if password := os.Getenv("AUTOMATION_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Redis.Password = password
	}

	if username := os.Getenv("AUTOMATION_EMAIL_USERNAME"); username != "" {
		cfg.Email.Username = username
	}
	if password := os.Getenv("AUTOMATION_EMAIL_PASSWORD"); password != "" {
		cfg.Email.Password = password
	}
}

// App represents the automation application
type App struct {
	config          *config.Config
	logger          logging.Logger
	server          *api.Server
	storageProvider storage.StorageProvider
	resumer         *engine.Resumer
	scheduler       *trigger.CronScheduler
	emailSource     *trigger.EmailSource

	cancelBackground context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:    cfg.Logging.Level,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	storageProvider, err := newStorageProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := storageProvider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := workflow.NewRegistry(storageProvider.GetWorkflowStore())

	// Collaborators. The email messenger is the only built-in; SMS and
	// WhatsApp delivery arrive through integration services that
	// register their own executors.
	var messenger executor.Messenger
	var emailClient *utils.EmailClient
	if cfg.Email.Enabled {
		emailClient = utils.NewEmailClient(cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.IMAPHost, cfg.Email.IMAPPort, cfg.Email.Username, cfg.Email.Password)
		messenger = executor.NewEmailMessenger(emailClient, cfg.Email.FromAddress)
	}

	executors := executor.NewBuiltinRegistry(executor.Collaborators{
		Messenger: messenger,
	})

	eng := engine.New(engine.Options{
		RunStore:          storageProvider.GetRunStore(),
		ContinuationStore: storageProvider.GetContinuationStore(),
		GraphProvider:     registry,
		Executors:         executors,
		Evaluator:         scripting.NewJSExpressionEvaluator(scripting.EvaluatorOptions{}),
		Logger:            logger,
		StepTimeout:       time.Duration(cfg.Engine.StepTimeoutSeconds) * time.Second,
	})

	resumer := engine.NewResumer(eng, engine.RealClock{},
		time.Duration(cfg.Engine.ResumePollSeconds)*time.Second, logger)

	triggers := trigger.NewService(registry, eng, logger)
	scheduler := trigger.NewCronScheduler(storageProvider.GetScheduleStore(), triggers, logger)

	var emailSource *trigger.EmailSource
	if cfg.Email.Enabled {
		emailSource = trigger.NewEmailSource(emailClient, triggers,
			os.Getenv("AUTOMATION_EMAIL_TENANT"),
			time.Duration(cfg.Email.PollSeconds)*time.Second, logger)
	}

	server := api.NewServer(cfg, registry, eng, triggers, scheduler, logger)

	return &App{
		config:          cfg,
		logger:          logger,
		server:          server,
		storageProvider: storageProvider,
		resumer:         resumer,
		scheduler:       scheduler,
		emailSource:     emailSource,
	}, nil
}

func newStorageProvider(cfg *config.Config) (storage.StorageProvider, error) {
	switch cfg.Storage.Type {
	case "memory":
		return storage.NewProvider(storage.ProviderConfig{Type: storage.MemoryProviderType})
	case "postgres", "postgresql":
		return storage.NewProvider(storage.ProviderConfig{
			Type: storage.PostgresProviderType,
			Postgres: &storage.PostgresProviderConfig{
				Host:     cfg.Storage.Postgres.Host,
				Port:     cfg.Storage.Postgres.Port,
				User:     cfg.Storage.Postgres.User,
				Password: cfg.Storage.Postgres.Password,
				Database: cfg.Storage.Postgres.Database,
				SSLMode:  cfg.Storage.Postgres.SSLMode,
			},
		})
	case "redis":
		return storage.NewProvider(storage.ProviderConfig{
			Type: storage.RedisProviderType,
			Redis: &storage.RedisProviderConfig{
				Addr:     cfg.Storage.Redis.Addr,
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			},
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// Start starts all application components
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelBackground = cancel

	go a.resumer.Run(ctx)

	if err := a.scheduler.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if a.emailSource != nil {
		go a.emailSource.Run(ctx)
	}

	return a.server.Start()
}

// Stop stops all application components gracefully
func (a *App) Stop(ctx context.Context) error {
	if err := a.server.Stop(ctx); err != nil {
		return err
	}

	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	a.scheduler.Stop()

	return a.storageProvider.Close()
}
