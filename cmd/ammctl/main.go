package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/amm-pool-engine/cmd/ammctl/config"
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/defistate/amm-pool-engine/registry"
	"github.com/defistate/amm-pool-engine/scenario"
	"github.com/defistate/amm-pool-engine/store"
	"github.com/prometheus/client_golang/prometheus"
)

// errUnexpectedOutcome is returned when failOnUnexpected is set and a step surprised us.
var errUnexpectedOutcome = errors.New("scenario produced unexpected outcomes")

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file.")
	scenarioPath := flag.String("scenario", "", "Path to the scenario file; overrides the configuration.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, func(c *config.Config) {
		if *scenarioPath != "" {
			c.Scenario = *scenarioPath
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(2)
	}

	rootLogger, logCloser := newLogger(cfg.Log)

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, cfg, rootLogger, os.Stdout, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	stop()
	if err != nil {
		rootLogger.Error("ammctl failed", "error", err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run wires the store, registry and scenario runner and executes cfg.Scenario.
func run(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	out io.Writer,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
) (err error) {
	sc, err := scenario.LoadFile(cfg.Scenario)
	if err != nil {
		return err
	}

	var (
		journal  registry.Journal
		restored []pool.Pool
	)
	if cfg.Store.Enabled() {
		var s *store.Store
		s, err = store.Open(store.Options{
			Path:          cfg.Store.Path,
			InMemory:      cfg.Store.InMemory,
			EncryptionKey: cfg.Store.Key(),
		})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		if restored, err = s.Load(); err != nil {
			return err
		}
		journal = s
		logger.Info("store opened", "path", cfg.Store.Path, "inMemory", cfg.Store.InMemory, "pools", len(restored))
	}

	r, err := registry.NewFromSnapshot(&registry.Config{
		Registry: reg,
		Logger:   logger.With("component", "registry"),
		Journal:  journal,
	}, restored)
	if err != nil {
		return err
	}

	runner := scenario.NewRunner(r, out, logger.With("component", "scenario"))
	summary, err := runner.Run(ctx, sc)
	if err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, gatherer); err != nil {
			return fmt.Errorf("failed to write metrics to %s: %w", cfg.MetricsFile, err)
		}
	}

	if cfg.FailOnUnexpected && summary.Unexpected > 0 {
		return fmt.Errorf("%w: %d of %d steps", errUnexpectedOutcome, summary.Unexpected, summary.Steps)
	}
	return nil
}
