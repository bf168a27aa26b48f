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

	"github.com/joseph-ayodele/dpr-analyzer/internal/artifact"
	"github.com/joseph-ayodele/dpr-analyzer/internal/common"
	"github.com/joseph-ayodele/dpr-analyzer/internal/extract"
	"github.com/joseph-ayodele/dpr-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/dpr-analyzer/internal/predict"
	"github.com/joseph-ayodele/dpr-analyzer/internal/report"
	"github.com/joseph-ayodele/dpr-analyzer/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Artifact ledger + crash-recovery sweep before accepting anything.
	ledger, err := artifact.OpenLedger(cfg.Storage.DataDir, logger)
	if err != nil {
		logger.Error("opening artifact ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	if swept, err := ledger.Sweep(ctx); err != nil {
		logger.Error("sweeping orphaned job directories", "error", err)
		os.Exit(1)
	} else if swept > 0 {
		logger.Info("swept orphaned job directories", "count", swept)
	}

	store, err := artifact.NewStore(cfg.Storage.DataDir, cfg.Storage.MaxUploadBytes, ledger, logger)
	if err != nil {
		logger.Error("initializing artifact store", "error", err)
		os.Exit(1)
	}

	invoker := extract.NewInvoker(extract.Config{
		Command: cfg.Extractor.Command,
		Args:    cfg.Extractor.Args,
	}, logger)

	predictor := predict.NewAdapter(
		predict.NewClient(cfg.Predictor.URL, cfg.Predictor.Timeout, logger),
		cfg.Predictor.Enabled,
		logger,
	)

	orc := pipeline.NewOrchestrator(store, invoker, predictor, logger,
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout),
		pipeline.WithExternalSlots(cfg.Pipeline.Workers),
	)

	queue := pipeline.NewQueue(orc, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
	)

	handler := server.NewHandler(
		orc,
		queue,
		report.NewService(logger),
		cfg.Storage.MaxUploadBytes,
		cfg.Extractor.Command,
		cfg.Predictor.Enabled,
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("dprd serving", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
