package progress

import "context"

// Emitter publishes individual events. Channel satisfies this interface so
// collaborators can stay agnostic about how events are buffered or consumed.
// Implementations must be safe for concurrent use and must not block.
type Emitter interface {
	Emit(evt Event)
}

// Source yields events one at a time in arrival order. Next blocks until an
// event is available or ctx is done.
type Source interface {
	Next(ctx context.Context) (Event, error)
	TryNext() (Event, bool)
}

// Display renders counters for an operator. Update is called after every
// progress event; Refresh is forced when a category reports completion.
// Both are invoked from the aggregator goroutine only.
type Display interface {
	Update(c Counter) error
	Refresh(c Counter) error
}

// Closer is optionally implemented by displays that hold resources.
type Closer interface {
	Close() error
}
