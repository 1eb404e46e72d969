package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/config"
	"github.com/torosent/loadcore/internal/gate"
	"github.com/torosent/loadcore/internal/logging"
	"github.com/torosent/loadcore/internal/output"
	"github.com/torosent/loadcore/internal/runner"
	"github.com/torosent/loadcore/internal/stat"
	"github.com/torosent/loadcore/internal/threshold"
	"github.com/torosent/loadcore/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// errUnsuccessful marks a run that finished but not with Success.
var errUnsuccessful = errors.New("run did not succeed")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUnsuccessful) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.Identity{JobID: cfg.JobID, ClientID: cfg.ClientID})
	if err != nil {
		return err
	}
	if provider.Exporting() {
		logger.Debug("exporting spans", zap.String("protocol", cfg.Tracing.Protocol))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	job, err := newJobFromConfig(cfg, provider.ShouldPropagate())
	if err != nil {
		return err
	}

	reporter, err := newReporter(cfg, logger, stderr)
	if err != nil {
		return err
	}

	gateOpts := cfg.Rate.GateOptions(cfg.CollectionInterval)
	gateOpts.Seed = time.Now().UnixNano()

	opts := runner.Options{
		JobID:        cfg.JobID,
		ClientID:     cfg.ClientID,
		Threads:      cfg.Threads,
		Duration:     cfg.Duration,
		WarmUp:       cfg.WarmUp,
		CoolDown:     cfg.CoolDown,
		Interval:     cfg.CollectionInterval,
		DrainTimeout: cfg.DrainTimeout,
		Gate:         gate.New(gateOpts),
		Factory:      stat.NewFactory(stat.WithLogger(logger)),
		Logger:       logger,
		Tracer:       provider.Tracer(),
	}
	if reporter != nil {
		opts.Reporter = reporter
		reporter.Start()
	}

	logger.Info("starting run",
		zap.String("job", string(cfg.Job)),
		zap.String("job_id", cfg.JobID),
		zap.String("client_id", cfg.ClientID),
		zap.Int("threads", cfg.Threads),
		zap.Duration("duration", cfg.Duration))

	res := runner.New(job, opts).Run(ctx)

	if reporter != nil {
		if err := reporter.Stop(); err != nil {
			logger.Warn("closing real-time sink failed", zap.Error(err))
		}
		stats := reporter.Stats()
		logger.Debug("real-time reporting finished",
			zap.Int64("sent", stats.Sent),
			zap.Int64("failed", stats.Failed),
			zap.Int64("dropped", stats.Dropped))
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(output.Summaries(res.Trackers))
	if failed := threshold.Failed(results); failed > 0 {
		logger.Warn("thresholds failed", zap.Int("failed", failed), zap.Int("total", len(results)))
		res.Status = res.Status.Worse(runner.CompletedWithErrors)
	}

	if err := output.Write(stdout, cfg.Output.Format, output.Build(string(cfg.Job), res, results)); err != nil {
		return err
	}

	if res.Status != runner.Success {
		return fmt.Errorf("%w: %s", errUnsuccessful, res.Status)
	}
	return nil
}
