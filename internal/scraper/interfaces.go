package scraper

import (
	"context"
	"time"
)

// Adapter is a job source. Fetch returns normalized-ready records or fails
// with a TransientFetchError or PermanentFetchError.
type Adapter interface {
	ID() SourceID
	Fetch(ctx context.Context, query, location string, identity Identity) ([]JobRecord, error)
}

// SeenMarker performs the atomic check-and-insert for a single fingerprint.
// It returns true when the fingerprint was not present and is now recorded.
type SeenMarker interface {
	MarkSeen(ctx context.Context, job SeenJob) (bool, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// DedupStore answers "is this new?" for batches of records.
type DedupStore interface {
	FilterNew(ctx context.Context, records []JobRecord) ([]JobRecord, error)
	Check(ctx context.Context, records []JobRecord) (DedupResult, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Notifier delivers a record to a user over the message channel.
type Notifier interface {
	Deliver(ctx context.Context, userID string, record JobRecord) error
	SendText(ctx context.Context, userID, text string) error
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so scheduling can be driven by a virtual clock.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	AfterFunc(d time.Duration, f func()) Timer
}

// IDGenerator returns unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces hex digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}
