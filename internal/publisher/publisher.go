// Package publisher defines the delivered-job event stream published to
// downstream consumers after a posting reaches a user.
package publisher

import (
	"context"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// EventDelivered is the type attribute of JobEvent messages.
const EventDelivered = "job.delivered"

// JobEvent announces one delivered posting.
type JobEvent struct {
	EventID     string            `json:"event_id"`
	CycleID     string            `json:"cycle_id"`
	UserID      string            `json:"user_id"`
	Fingerprint string            `json:"fingerprint"`
	Job         scraper.JobRecord `json:"job"`
	Summary     string            `json:"summary,omitempty"`
	DeliveredAt time.Time         `json:"delivered_at"`
}

// Publisher sends JobEvents and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, evt JobEvent) (string, error)
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, JobEvent) (string, error) { return "", nil }
