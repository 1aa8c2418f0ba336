package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// LogSink writes every crawl event as a structured debug log. Unhealthy
// pages are logged at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
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
			zap.String("run_id", uuid.UUID(evt.RunID).String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("site", evt.Site),
			zap.String("url", evt.URL),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Stage {
		case progress.StageFetchDone:
			fields = append(fields,
				zap.String("source", evt.Source),
				zap.Int("status", evt.StatusCode),
				zap.Int64("bytes", evt.Bytes),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			if !evt.Healthy {
				s.logger.Warn("unhealthy page", fields...)
				continue
			}
		case progress.StageCrawlDone, progress.StageCrawlError:
			fields = append(fields, zap.Int64("pages", evt.Pages), zap.Int64("errors", evt.Errors))
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
		}
		s.logger.Debug("crawl event", fields...)
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
