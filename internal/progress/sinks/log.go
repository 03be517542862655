package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
)

// LogSink emits one structured log line per event. Useful in development or
// when no cycle store is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("cycle_id", evt.CycleUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("user_id", evt.UserID),
		}
		if evt.Source != "" {
			fields = append(fields,
				zap.String("source", evt.Source),
				zap.String("query", evt.Query),
				zap.String("outcome", evt.Outcome),
				zap.Int("attempts", evt.Attempts),
			)
		}
		fields = append(fields,
			zap.Int64("records", evt.Records),
			zap.Duration("dur", evt.Dur),
		)
		if evt.Stage == progress.StageCycleDone || evt.Stage == progress.StageCycleTimeout {
			fields = append(fields,
				zap.Int64("new_records", evt.NewRecords),
				zap.Int64("delivered", evt.Delivered),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
