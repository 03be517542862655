// Package log is a Notifier that writes deliveries to the structured log,
// used when no chat transport is configured.
package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/notify"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Notifier logs every delivery at Info.
type Notifier struct {
	logger *zap.Logger
}

// New returns a log Notifier.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger.Named("notify")}
}

// Deliver implements scraper.Notifier.
func (n *Notifier) Deliver(ctx context.Context, userID string, record scraper.JobRecord) error {
	return n.DeliverEnriched(ctx, userID, record, "")
}

// DeliverEnriched implements notify.EnrichedDeliverer.
func (n *Notifier) DeliverEnriched(_ context.Context, userID string, record scraper.JobRecord, summary string) error {
	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("source", string(record.Source)),
		zap.String("title", record.Title),
		zap.String("company", record.Company),
		zap.String("location", record.Location),
		zap.String("url", record.URL),
	}
	if s := notify.FormatSalary(record.Salary); s != "" {
		fields = append(fields, zap.String("salary", s))
	}
	if summary != "" {
		fields = append(fields, zap.String("summary", summary))
	}
	n.logger.Info("job delivered", fields...)
	return nil
}

// SendText implements scraper.Notifier.
func (n *Notifier) SendText(_ context.Context, userID, text string) error {
	n.logger.Info("message", zap.String("user_id", userID), zap.String("text", text))
	return nil
}
