// SPDX-License-Identifier: MIT

// vmixd keeps live connections to one or more vMix instances and
// exposes their state and controls over HTTP and a websocket stream.
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

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vmixd/internal/api"
	"github.com/ManuGH/vmixd/internal/config"
	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/manager"
	"github.com/ManuGH/vmixd/internal/state"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "vmixd",
		Version: version,
	})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath, version)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	// Re-configure with the loaded level.
	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "vmixd",
		Version: version,
	})
	logger.Info().
		Str("event", "daemon.starting").
		Str("listen", cfg.Listen).
		Int("seed_connections", len(cfg.Connections)).
		Msg("starting vmixd")

	sup := manager.New(manager.Options{
		FetchTimeout:     cfg.FetchTimeout,
		FailureThreshold: cfg.FailureThreshold,
		BackoffInitial:   cfg.BackoffInitial,
		BackoffMax:       cfg.BackoffMax,
		DefaultInterval:  cfg.PollInterval,
	})
	defer sup.Close()

	seedConnections(ctx, sup, cfg.Connections)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(sup, version).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("event", "http.listening").Str("addr", cfg.Listen).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Str("event", "daemon.stopping").Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.stopped").Msg("vmixd stopped")
}

// seedConnections establishes the configured startup connections. A
// seed that fails is logged and skipped; its host can still be
// connected later through the API.
func seedConnections(ctx context.Context, sup *manager.Supervisor, seeds []config.SeedConnection) {
	logger := xlog.WithComponent("daemon")
	for _, seed := range seeds {
		if seed.AutoRefresh != (state.AutoRefreshConfig{}) {
			sup.SetAutoRefreshConfig(seed.Host, seed.AutoRefresh)
		}
		rec, err := sup.Connect(ctx, manager.ConnectRequest{
			Host:      seed.Host,
			Port:      seed.Port,
			Transport: seed.Transport,
			Label:     seed.Label,
		})
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "seed.connect_failed").
				Str("host", seed.Host).
				Msg("seed connection failed, continuing without it")
			continue
		}
		logger.Info().
			Str("event", "seed.connected").
			Str("host", rec.Host).
			Str("transport", string(rec.Transport)).
			Msg("seed connection established")
	}
}
