// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	sched, err := scheduler.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if cfg.Sweep.Enabled {
		registerSweeps(sched, database, cfg.Sweep)
	}

	server := newServer(cfg, database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start()
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

func registerSweeps(sched *scheduler.Service, database *db.DB, cfg config.SweepConfig) {
	jobCtx := log.Logger.WithContext(context.Background())

	if _, err := sched.AddJob("expire-slot-invitations", cfg.Cron, func() {
		if err := scheduler.SweepHolds(jobCtx, database, time.Now().UTC()); err != nil {
			log.Error().Err(err).Msg("Hold sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register hold sweep")
	}

	if _, err := sched.AddJob("complete-finished-series", cfg.Cron, func() {
		if err := scheduler.SweepSeries(jobCtx, database, time.Now().UTC()); err != nil {
			log.Error().Err(err).Msg("Series sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register series sweep")
	}
}
