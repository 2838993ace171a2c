package progress

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// Channel is an unbounded, ordered, multi-producer single-consumer conduit of
// Events. Emit never blocks regardless of how far the consumer lags behind.
// There is no close operation; consumers stop by cancelling the context they
// pass to Next and then draining with TryNext.
type Channel struct {
	mu     sync.Mutex
	buf    *queue.Queue
	notify chan struct{}
	logger *zap.Logger
}

// NewChannel constructs an empty Channel. A nil logger disables debug output
// for discarded events.
func NewChannel(logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		buf:    queue.New(),
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

// Emit appends evt to the conduit. Malformed events are discarded.
func (c *Channel) Emit(evt Event) {
	if c == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		c.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.buf.Add(evt)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// TryNext pops the oldest buffered event without waiting.
func (c *Channel) TryNext() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Length() == 0 {
		return Event{}, false
	}
	evt, ok := c.buf.Remove().(Event)
	return evt, ok
}

// Next blocks until an event is available or ctx is done. The wait has no
// timeout of its own.
func (c *Channel) Next(ctx context.Context) (Event, error) {
	for {
		if evt, ok := c.TryNext(); ok {
			return evt, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, fmt.Errorf("progress channel wait: %w", ctx.Err())
		case <-c.notify:
		}
	}
}

// Len reports how many events are buffered.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Length()
}
