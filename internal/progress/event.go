package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a cycle milestone.
type Stage string

// Supported stages.
const (
	StageCycleStart   Stage = "CYCLE_START"
	StageCycleDone    Stage = "CYCLE_DONE"
	StageCycleTimeout Stage = "CYCLE_TIMEOUT"
	StageUnitDone     Stage = "UNIT_DONE"
	StageUnitError    Stage = "UNIT_ERROR"
	StageUnitSkipped  Stage = "UNIT_SKIPPED"
	StageDelivered    Stage = "DELIVERED"
)

// Outcome classes reported on unit events.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomeTimeout   = "timeout"
	OutcomeSkipped   = "skipped"
)

// Event is one progress milestone of a scrape cycle.
type Event struct {
	CycleID  [16]byte
	TS       time.Time
	Stage    Stage
	UserID   string
	Source   string
	Query    string
	Outcome  string
	Records  int64
	Attempts int
	Dur      time.Duration
	// NewRecords and Delivered are cycle totals set on CYCLE_DONE and
	// CYCLE_TIMEOUT.
	NewRecords int64
	Delivered  int64
	// Note carries short error text; never credentials or full payloads.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CycleID == [16]byte{} {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageCycleTimeout:
	case StageUnitDone, StageUnitError, StageUnitSkipped, StageDelivered:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Records < 0 || e.NewRecords < 0 || e.Delivered < 0 {
		return errors.New("record counts must be >= 0")
	}
	return nil
}

// CycleUUID converts the binary cycle id for repositories.
func (e Event) CycleUUID() uuid.UUID {
	return uuid.UUID(e.CycleID)
}

// IDFromString parses a textual cycle id into the Event form. Invalid input
// yields the zero id, which Validate rejects.
func IDFromString(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return [16]byte(parsed)
}
