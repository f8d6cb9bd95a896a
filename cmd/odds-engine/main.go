package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matchpulse/odds-engine/internal/monaco"
	"github.com/matchpulse/odds-engine/internal/notify"
	pkgconfig "github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/logging"
	"github.com/matchpulse/odds-engine/internal/pkg/storage"
	"github.com/matchpulse/odds-engine/internal/pinnacle"
	"github.com/matchpulse/odds-engine/internal/resolver"
)

const defaultConfigPath = "configs/production.yaml"

type flags struct {
	configPath string
	runFor     time.Duration
}

func main() {
	if err := run(); err != nil {
		slog.Error("Odds engine failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	slog.Info("Loading config", "path", cfg.configPath)
	appConfig, err := pkgconfig.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.Setup(&appConfig.Logging, "odds-engine")

	store, err := storage.Open(&appConfig.Postgres)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	notifier, err := notify.New(&appConfig.Alerts, log)
	if err != nil {
		return fmt.Errorf("failed to initialize alerts: %w", err)
	}
	monitor := notify.NewMonitor(notifier, appConfig.Alerts.StaleAfter, log)

	res := resolver.New(store)

	ctx, cancel := createContext(cfg.runFor)
	defer cancel()
	setupSignalHandler(ctx, cancel)

	go monitor.Run(ctx)

	var started []venueAdapter

	if appConfig.Monaco.Enabled {
		svc := monaco.NewService(&appConfig.Monaco, store, res, notifier, monitor, log.With("venue", monaco.BookieName))
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start monaco service: %w", err)
		}
		started = append(started, svc)
	}
	if appConfig.Pinnacle.Enabled {
		svc := pinnacle.NewService(&appConfig.Pinnacle, store, res, notifier, monitor, log.With("venue", pinnacle.BookieName))
		if err := svc.Start(ctx); err != nil {
			stopAll(started)
			return fmt.Errorf("failed to start pinnacle service: %w", err)
		}
		started = append(started, svc)
	}
	if len(started) == 0 {
		return fmt.Errorf("no venue adapter enabled in config")
	}

	log.Info("Odds engine running", "adapters", len(started))
	<-ctx.Done()

	log.Info("Shutting down...")
	stopAll(started)
	log.Info("Odds engine stopped gracefully")
	return nil
}

// venueAdapter is the lifecycle both venue services expose.
type venueAdapter interface {
	Start(ctx context.Context) error
	Stop()
}

func stopAll(adapters []venueAdapter) {
	for i := len(adapters) - 1; i >= 0; i-- {
		adapters[i].Stop()
	}
}

func parseFlags() flags {
	var cfg flags
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}
	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file")
	flag.DurationVar(&cfg.runFor, "run-for", 0, "Auto-stop after duration. 0 = run until SIGINT/SIGTERM")
	flag.Parse()
	return cfg
}

func createContext(runFor time.Duration) (context.Context, context.CancelFunc) {
	if runFor > 0 {
		return context.WithTimeout(context.Background(), runFor)
	}
	return context.WithCancel(context.Background())
}

func setupSignalHandler(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
		}
	}()
}
