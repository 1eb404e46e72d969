package report

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every snapshot as a structured log entry.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, batch []Snapshot) error {
	for _, snap := range batch {
		s.logger.Info("stat",
			zap.String("job_id", snap.JobID),
			zap.String("owner_id", snap.OwnerID),
			zap.String("sub_owner_id", snap.SubOwnerID),
			zap.String("stat", snap.Stat),
			zap.String("op", string(snap.Op)),
			zap.Int("interval", snap.Interval),
			zap.Float64("value", snap.Value),
		)
	}
	return nil
}

func (s *LogSink) Close() error {
	_ = s.logger.Sync()
	return nil
}
