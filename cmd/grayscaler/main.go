// cmd/grayscaler/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tendant/simple-grayscaler/internal/bus"
	"github.com/tendant/simple-grayscaler/internal/config"
	"github.com/tendant/simple-grayscaler/internal/coordinator"
	"github.com/tendant/simple-grayscaler/internal/discover"
	"github.com/tendant/simple-grayscaler/internal/img"
	"github.com/tendant/simple-grayscaler/internal/logging"
	"github.com/tendant/simple-grayscaler/internal/metrics"
	"github.com/tendant/simple-grayscaler/internal/observe"
	"github.com/tendant/simple-grayscaler/internal/process"
	"github.com/tendant/simple-grayscaler/internal/storage"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one batch and returns the process exit code. Configuration
// problems exit 1; a run that started always exits 0, whatever its outcome.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	logger := logging.New(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel}, stdout, stderr)
	slog.SetDefault(logger)

	workers, err := config.ParseWorkers(args, cfg.Workers)
	if err != nil {
		logger.Warn("ignoring worker count argument", "err", err, "workers", workers)
	}

	strategy, err := coordinator.StrategyFor(cfg.DispatchMode)
	if err != nil {
		logger.Error("invalid dispatch mode", "err", err)
		return 1
	}

	filter, err := img.GetFilter(cfg.Filter)
	if err != nil {
		logger.Error("invalid filter", "err", err)
		return 1
	}

	paths, err := discover.Images(cfg.InputDir, cfg.Extensions)
	if err != nil {
		var cerr *discover.ConfigError
		if errors.As(err, &cerr) {
			logger.Error("input directory unusable", "dir", cerr.Dir, "err", cerr.Err)
		} else {
			logger.Error("list input directory", "dir", cfg.InputDir, "err", err)
		}
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintf(stdout, "No images found in: %s\n", cfg.InputDir)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec := img.NewCodec()
	sink, err := storage.Open(ctx, storage.Config{
		Dir:         cfg.OutputDir,
		URL:         cfg.OutputURL,
		ContentType: "image/" + codec.Format(),
	})
	if err != nil {
		logger.Error("open output", "err", err)
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close output", "err", err)
		}
	}()
	if err := sink.Prepare(ctx); err != nil {
		logger.Error("prepare output", "location", sink.Location(), "err", err)
		return 1
	}

	observers := observe.Multi{observe.NewLogObserver(logger)}

	if cfg.NATSURL != "" {
		client, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats unavailable, run events will not be published", "url", cfg.NATSURL, "err", err)
		} else {
			defer client.Close()
			observers = append(observers, bus.NewPublisher(client, cfg.ResultSubject, logger))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observers = append(observers, metrics.NewRecorder(reg, "grayscaler"))
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	set := process.NewSet(discover.Refs(paths, discover.OutputPrefix))
	unit := process.NewUnit(codec, filter, sink, logger)
	coord := coordinator.New(strategy, unit,
		coordinator.WithLogger(logger),
		coordinator.WithObserver(observers),
		coordinator.WithDrainGrace(cfg.DrainGrace),
		coordinator.WithOutputLocation(sink.Location()),
	)

	fmt.Fprintf(stdout, "Processing %d images with %d workers...\n", set.Len(), workers)
	res := coord.Run(ctx, set, workers, cfg.RunTimeout)
	report(stdout, res, sink.Location())

	// Abandoned workers skip their writes; let them return before the sink
	// and the NATS connection are closed.
	settleCtx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := coord.Wait(settleCtx); err != nil {
		logger.Warn("workers still running at exit", "err", err)
	}
	return 0
}

const settleTimeout = 5 * time.Second

func report(w io.Writer, res coordinator.RunResult, location string) {
	ms := res.Elapsed.Milliseconds()
	switch res.State {
	case coordinator.TimedOut:
		fmt.Fprintf(w, "Run timed out after %d ms\n", ms)
	case coordinator.Interrupted:
		fmt.Fprintf(w, "Run interrupted after %d ms\n", ms)
	default:
		fmt.Fprintf(w, "All images processed in %d ms\n", ms)
	}
	fmt.Fprintf(w, "Succeeded: %d, failed: %d, unfinished: %d\n", res.Succeeded, res.Failed, res.Unfinished)
	fmt.Fprintf(w, "Output saved to: %s\n", location)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
