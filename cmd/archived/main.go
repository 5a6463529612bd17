package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmesh/archiver/internal/config"
	"github.com/flowmesh/archiver/internal/logger"
	"github.com/flowmesh/archiver/internal/version"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(2)
	}

	log := logger.WithComponent("archived")
	log.Info().Object("build", version.Get()).Msg("Starting archiver")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start")
		os.Exit(1)
	}

	if err := d.run(ctx); err != nil {
		log.Error().Err(err).Msg("Archiver stopped with error")
		os.Exit(1)
	}
}
