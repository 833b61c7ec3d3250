package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pagepress/export-api/internal/compress"
	"github.com/pagepress/export-api/internal/config"
	"github.com/pagepress/export-api/internal/export"
	"github.com/pagepress/export-api/internal/janitor"
	"github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/merge"
	"github.com/pagepress/export-api/internal/monitor"
	"github.com/pagepress/export-api/internal/pipeline"
	"github.com/pagepress/export-api/internal/platform/sqlite"
	"github.com/pagepress/export-api/internal/queue"
	"github.com/pagepress/export-api/internal/render"
	jobrepo "github.com/pagepress/export-api/internal/repository/job"
	"github.com/pagepress/export-api/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Root context: cancelled on SIGINT/SIGTERM so the worker and the
	// background loops wind down promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	repo := jobrepo.NewRepository(db.DB)

	// Resource monitor: advisory sampling; the admission gate reads it.
	mon := monitor.New(
		uint64(cfg.SoftMemoryMB)<<20,
		uint64(cfg.HardMemoryMB)<<20,
		monitor.WithInterval(cfg.SampleInterval),
	)
	go mon.Run(rootCtx)

	// Execution queue: one slot by default so a single renderer process is
	// alive at a time.
	q := queue.New(cfg.Workers)
	queueDone := make(chan struct{})
	go func() {
		q.Run(rootCtx)
		close(queueDone)
	}()

	// Status stream hub.
	hub := server.NewHub()
	go hub.Run(rootCtx)

	// Pipeline collaborators.
	renderer := render.NewChromium(render.WithBinary(cfg.ChromiumPath))
	merger := merge.NewPDFUnite(merge.WithBinary(cfg.PDFUnitePath))
	compressor := compress.NewClient(cfg.CompressorURL, cfg.CompressorToken)
	if !compressor.Available() {
		slog.Info("compression backend not configured, exports will skip compression")
	}

	runner := pipeline.NewRunner(repo, renderer, merger, compressor, cfg.WorkDir,
		pipeline.WithRenderTimeout(cfg.RenderTimeout),
		pipeline.WithCleanupDelay(cfg.PageCleanupDelay),
		pipeline.WithOnUpdate(hub.BroadcastJob),
	)

	exportSvc := export.NewService(repo, q, mon, runner, cfg.MaxQueueDepth)
	jobSvc := job.NewService(repo)

	jan := janitor.New(repo,
		janitor.WithInterval(cfg.SweepInterval),
		janitor.WithRetention(cfg.RetentionWindow),
	)
	go jan.Run(rootCtx)

	// rootCtx is used as BaseContext so every request context inherits from
	// it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, exportSvc, jobSvc, hub)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "workers", cfg.Workers,
		"maxQueueDepth", cfg.MaxQueueDepth)
	<-done

	// Cancel root context first so the queue stops dispatching and in-flight
	// pipeline stages observe cancellation.
	rootCancel()

	// Wait for the active pipeline run to drain before shutting down HTTP.
	<-queueDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
