package main

import (
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/torosent/loadcore/internal/config"
	"github.com/torosent/loadcore/internal/output"
	"github.com/torosent/loadcore/internal/report"
)

// newReporter returns nil when real-time reporting is off.
func newReporter(cfg *config.Config, logger *zap.Logger, console io.Writer) (*report.Reporter, error) {
	sink, err := newSink(cfg.Reporting, logger, console)
	if err != nil || sink == nil {
		return nil, err
	}
	interval := cfg.Reporting.Interval
	if interval <= 0 {
		interval = cfg.CollectionInterval
	}
	return report.New(sink, report.Options{
		Interval:   interval,
		JobID:      cfg.JobID,
		Logger:     logger,
		MaxPending: cfg.Reporting.MaxPending,
	}), nil
}

func newSink(cfg config.ReportingConfig, logger *zap.Logger, console io.Writer) (report.Sink, error) {
	switch strings.ToLower(cfg.Sink) {
	case "":
		return nil, nil
	case "log":
		return report.NewLogSink(logger), nil
	case "console":
		return output.NewConsoleSink(console), nil
	case "websocket":
		return report.NewWebSocketSink(report.WebSocketConfig{URL: cfg.URL})
	case "prometheus":
		sink, err := report.NewPrometheusSink(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}
		addr, err := sink.Serve(cfg.Listen)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		logger.Info("serving real-time statistics", zap.Stringer("addr", addr))
		return sink, nil
	default:
		return nil, nil
	}
}
