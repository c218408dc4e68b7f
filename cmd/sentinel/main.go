package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/annotator"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/ledger"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/pseudonym"
	"github.com/raaihank/pii-sentinel/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("PII-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting PII-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	server.Version = version
	m := metrics.New()

	// One salt per server process, never stored
	salt, err := pseudonym.NewSalt()
	if err != nil {
		log.Fatal("Failed to generate salt", zap.Error(err))
	}
	log.Debug("Run salt generated", zap.Object("salt", salt))

	p, err := pseudonym.New(salt)
	if err != nil {
		log.Fatal("Failed to create pseudonymizer", zap.Error(err))
	}

	ann, closeAnnotator, err := annotator.New(cfg.Annotator, m, log)
	if err != nil {
		log.Fatal("Failed to initialize annotator", zap.Error(err))
	}
	defer closeAnnotator()

	engine, err := privacy.New(cfg.Privacy, p, ann, log.WithComponent("privacy"))
	if err != nil {
		log.Fatal("Failed to create privacy engine", zap.Error(err))
	}

	var recorder server.Recorder
	if cfg.Ledger.Enabled {
		store, err := ledger.NewStore(&ledger.Config{
			DatabaseURL:     cfg.Ledger.DatabaseURL,
			MaxOpenConns:    cfg.Ledger.MaxOpenConns,
			MaxIdleConns:    cfg.Ledger.MaxIdleConns,
			ConnMaxLifetime: cfg.Ledger.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Ledger.ConnMaxIdleTime,
		}, log.WithComponent("ledger").Logger)
		if err != nil {
			log.Warn("Ledger unavailable, run will not be recorded", zap.Error(err))
		} else {
			defer store.Close()
			recorder = store
		}
	}

	srv, err := server.New(cfg, engine, recorder, m, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Hot reload of the privacy policy
	if err := config.Watch(*configPath, log.WithComponent("config").Logger, srv.Reload); err != nil {
		if errors.Is(err, config.ErrNoConfigFile) {
			log.Info("No configuration file to watch, hot reload disabled")
		} else {
			log.Warn("Failed to watch configuration", zap.Error(err))
		}
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(stopCtx)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
