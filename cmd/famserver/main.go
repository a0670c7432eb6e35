// Package main is the entrypoint for the famserver backend.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/cache"
	cachemem "github.com/cem-sucu/ia-familiale/internal/cache/memory"
	"github.com/cem-sucu/ia-familiale/internal/circle"
	"github.com/cem-sucu/ia-familiale/internal/config"
	"github.com/cem-sucu/ia-familiale/internal/delivery"
	"github.com/cem-sucu/ia-familiale/internal/identity"
	"github.com/cem-sucu/ia-familiale/internal/notify"
	"github.com/cem-sucu/ia-familiale/internal/push"
	"github.com/cem-sucu/ia-familiale/internal/server"
	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/trigger"

	// Register store drivers
	_ "github.com/cem-sucu/ia-familiale/internal/store/memory"
	_ "github.com/cem-sucu/ia-familiale/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	storeDriver := flag.String("store", "", "Store driver: sqlite or memory (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for file-backed stores (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	notifyProvider := flag.String("notify", "", "Notification provider: log or expo (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:     listenAddr,
			StoreDriver:    storeDriver,
			DataDir:        dataDir,
			LogLevel:       logLevel,
			NotifyProvider: notifyProvider,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("effective configuration",
		"mode", cfg.Mode,
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store.Driver,
		"notify", cfg.Notify.Provider,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	// Persistence
	driver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "error", err, "available", store.AvailableDrivers())
		os.Exit(1)
	}
	if err := driver.Init(context.Background()); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	// Identity
	sessionRepo := identity.NewMemorySessionRepo()
	userAuth := identity.NewUserAuth(0) // bcrypt default cost

	// Domain services
	registry := trigger.NewDefaultRegistry()
	machine := delivery.NewMachine(driver, driver, registry, logger)
	circles := circle.NewService(driver, driver, driver, logger)
	hub := push.NewHub(logger)

	// Out-of-app notifications
	var notifier notify.Notifier
	switch cfg.Notify.Provider {
	case "expo":
		var settings notify.ExpoSettings
		if err := cfg.DecodeComponent("expo", &settings); err != nil {
			logger.Error("invalid expo settings", "error", err)
			os.Exit(1)
		}
		notifier = notify.NewExpoSender(settings, logger)
	default:
		notifier = notify.NewLogNotifier(logger)
	}

	// Rate limit counter
	var counter cache.Counter
	if cfg.RateLimit.Enabled {
		counter = cachemem.New(cache.TTLRateLimit, time.Minute)
	}

	deps := &server.Deps{
		Store:       driver,
		Sessions:    sessionRepo,
		Auth:        userAuth,
		Registry:    registry,
		Machine:     machine,
		Circles:     circles,
		Hub:         hub,
		Notifier:    notifier,
		RateCounter: counter,
	}

	srv, err := server.New(cfg, logger, deps)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			os.Exit(1)
		}
	}
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
