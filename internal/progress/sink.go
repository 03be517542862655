package progress

import "context"

// Sink consumes batches of events. Implementations honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it; a nil *Hub is a
// valid no-op emitter.
type Emitter interface {
	Emit(evt Event)
}
