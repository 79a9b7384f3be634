// SPDX-License-Identifier: MIT

// parlord is the room lifecycle daemon: it serves the HTTP API, creates
// rooms on the Daily REST API, spawns one parlor-bot per room and guarantees
// room and bot are torn down together.
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

	"github.com/parlorvoice/parlor/internal/api"
	"github.com/parlorvoice/parlor/internal/config"
	"github.com/parlorvoice/parlor/internal/daily"
	"github.com/parlorvoice/parlor/internal/lifecycle"
	plog "github.com/parlorvoice/parlor/internal/log"
	"github.com/parlorvoice/parlor/internal/registry"
	"github.com/parlorvoice/parlor/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("parlord %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	plog.Configure(plog.Config{
		Level:   cfg.LogLevel,
		Service: "parlord",
		Version: version.Version,
	})
	logger := plog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Error().
			Err(err).
			Str(plog.FieldEvent, "config.invalid").
			Msg("configuration is invalid")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str(plog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.ListenAddr).
		Msg("starting parlord")

	logger.Info().Msgf("→ Room provider: %s (ttl: %s)", cfg.DailyAPIBase, cfg.RoomTTL)
	logger.Info().Msgf("→ Bot binary: %s (startup window: %s, grace: %s)", cfg.BotPath, cfg.StartupWindow, cfg.GraceTimeout)
	if cfg.MaxSessions > 0 {
		logger.Info().Msgf("→ Session cap: %d", cfg.MaxSessions)
	} else {
		logger.Info().Msg("→ Session cap: unlimited")
	}

	// Explicit wiring, no package-level state: registry -> coordinator ->
	// orchestrator -> HTTP surface.
	rooms := daily.New(cfg.DailyAPIBase, cfg.DailyAPIKey)
	reg := registry.New()
	coord := lifecycle.NewCoordinator(reg, rooms, cfg.GraceTimeout)
	orch := lifecycle.NewOrchestrator(ctx, cfg, reg, rooms, coord, nil)
	srv := api.NewServer(cfg, orch, coord, reg)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			return 1
		}
	case <-ctx.Done():
		logger.Info().
			Str(plog.FieldEvent, "shutdown").
			Msg("signal received, draining sessions")
	}

	// Everything below runs under one fixed deadline: the process must exit
	// even with unresponsive workers or a dead remote API.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete, closing")
		_ = httpServer.Close()
	}

	coord.DrainAll(shutdownCtx)
	orch.Wait()

	if remaining := reg.Len(); remaining > 0 {
		logger.Error().Int("sessions", remaining).Msg("sessions still registered after drain")
		return 1
	}

	logger.Info().Msg("parlord exiting")
	return 0
}
