package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/flowmesh/archiver/internal/archive"
	"github.com/flowmesh/archiver/internal/config"
	"github.com/flowmesh/archiver/internal/destination"
	"github.com/flowmesh/archiver/internal/logger"
	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/metrics"
	"github.com/flowmesh/archiver/internal/recovery"
	"github.com/flowmesh/archiver/internal/table"
	"github.com/flowmesh/archiver/internal/version"
)

const shutdownTimeout = 5 * time.Second

type daemon struct {
	cfg       *config.Config
	engine    *archive.Engine
	keeper    *recovery.Keeper
	collector *metrics.Collector
	server    *metrics.Server
	cron      *cron.Cron
	log       zerolog.Logger
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	log := logger.WithComponent("archived")

	collector := metrics.NewCollector()
	if cfg.Metrics.Enabled {
		collector = metrics.NewRuntimeCollector()
		build := version.Get()
		collector.RegisterBuildInfo(build.Version, build.GitCommit, build.GoVersion)
	}
	am := metrics.NewArchiveMetrics(collector)

	filters, err := table.LoadFilterTable(cfg.Tables.FilterTable, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter table: %w", err)
	}
	dests, err := table.LoadDestinationTable(cfg.Tables.DestinationTable, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to load destination table: %w", err)
	}

	policy, ok := destination.ParseSyncPolicy(cfg.Archive.SyncPolicy)
	if !ok {
		return nil, fmt.Errorf("invalid sync policy: %s", cfg.Archive.SyncPolicy)
	}

	keeper := recovery.OpenKeeper(cfg.Storage.RecoveryBackend, cfg.Storage.RecoveryDir, am)

	engine, err := archive.New(archive.Options{
		Limits:  cfg.Limits,
		Header:  cfg.Header,
		FS:      destination.OSFileSystem{CreateDirs: cfg.Archive.CreateDirs},
		Keeper:  keeper,
		Metrics: am,
		Sync:    policy,
	})
	if err != nil {
		//nolint:errcheck // Startup already failed
		_ = keeper.Close()
		return nil, err
	}
	engine.SetEnabled(cfg.Archive.Enabled)
	engine.LoadFilterTable(filters)
	if err := engine.LoadDestinationTable(dests); err != nil {
		//nolint:errcheck // Startup already failed
		_ = keeper.Close()
		return nil, fmt.Errorf("failed to apply destination table: %w", err)
	}

	d := &daemon{
		cfg:       cfg,
		engine:    engine,
		keeper:    keeper,
		collector: collector,
		cron:      cron.New(),
		log:       log.With().Str("instance", engine.ID()).Logger(),
	}
	if cfg.Metrics.Enabled {
		d.server = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, collector)
		d.server.SetReadiness(engine.Ready)
	}

	elapsed := cfg.TickSeconds()
	schedule := fmt.Sprintf("@every %s", cfg.Archive.TickInterval)
	if _, err := d.cron.AddFunc(schedule, func() { d.engine.TestAge(elapsed) }); err != nil {
		d.close()
		return nil, fmt.Errorf("invalid tick interval %q: %w", schedule, err)
	}

	return d, nil
}

// run replays the configured captures, optionally waits for a signal, then
// finalises every file
func (d *daemon) run(ctx context.Context) error {
	if d.server != nil {
		if err := d.server.Start(ctx); err != nil {
			d.close()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	d.cron.Start()

	var runErr error
	for _, path := range d.cfg.Archive.Captures {
		if err := d.replay(ctx, path); err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil && d.cfg.Archive.Hold {
		d.log.Info().Msg("Replay complete, waiting for signal")
		<-ctx.Done()
	}

	d.shutdown()
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// replay feeds every message of one capture file to the engine
func (d *daemon) replay(ctx context.Context, path string) error {
	reader, err := message.OpenCapture(path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer reader.Close()

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("capture %s at offset %d: %w", path, reader.Offset(), err)
		}
		d.engine.StorePacket(msg)
		count++
	}

	d.log.Info().Str("capture", path).Int("messages", count).Msg("Capture replayed")
	return nil
}

func (d *daemon) shutdown() {
	<-d.cron.Stop().Done()

	d.engine.CloseAll()
	c := d.engine.Counters()
	d.log.Info().
		Uint64("ignored", c.Ignored).
		Uint64("filtered", c.Filtered).
		Uint64("passed", c.Passed).
		Uint64("disabled", c.Disabled).
		Uint64("file_writes", c.FileWrites).
		Uint64("file_write_errors", c.FileWriteErrors).
		Uint64("file_updates", c.FileUpdates).
		Uint64("file_update_errors", c.FileUpdateErrors).
		Msg("Archiver counters")

	d.close()
}

func (d *daemon) close() {
	if err := d.keeper.Close(); err != nil {
		d.log.Warn().Err(err).Msg("Failed to close recovery store")
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Stop(ctx); err != nil {
			d.log.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
}
