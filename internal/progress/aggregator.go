package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// AggregatorConfig controls which categories are tracked and how failures
// are surfaced.
//   - Categories: the active categories in display order. Events for any
//     other category are ignored. An empty list accepts every known category.
//   - Logger: optional structured logger used for warnings.
//   - OnDisplayError: optional hook invoked for every DisplayError.
type AggregatorConfig struct {
	Categories     []Category
	Logger         *zap.Logger
	OnDisplayError func(*DisplayError)
}

// Aggregator turns the event stream into per-category counters and pushes
// every change to its displays. Handle must only be called from one goroutine;
// Snapshot may be called concurrently from anywhere.
type Aggregator struct {
	order    []Category
	active   map[Category]struct{}
	displays []Display
	logger   *zap.Logger
	onError  func(*DisplayError)

	mu       sync.RWMutex
	counters map[Category]*Counter

	handled       atomic.Int64
	ignored       atomic.Int64
	displayErrors atomic.Int64
}

// NewAggregator builds an Aggregator over the supplied displays.
func NewAggregator(cfg AggregatorConfig, displays ...Display) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	order := cfg.Categories
	if len(order) == 0 {
		order = append(append(append([]Category{}, DirectoryCategories...), CategoryShareEnum), EdgeCategories...)
	}
	active := make(map[Category]struct{}, len(order))
	for _, c := range order {
		active[c] = struct{}{}
	}
	return &Aggregator{
		order:    append([]Category(nil), order...),
		active:   active,
		displays: append([]Display(nil), displays...),
		logger:   logger,
		onError:  cfg.OnDisplayError,
		counters: make(map[Category]*Counter, len(order)),
	}
}

// Categories returns the active categories in display order.
func (a *Aggregator) Categories() []Category {
	return append([]Category(nil), a.order...)
}

// Run consumes src until ctx is done, then drains whatever is still buffered
// and closes displays that implement Closer. Run never fails because of a
// display; it returns only when ctx ends.
func (a *Aggregator) Run(ctx context.Context, src Source) {
	a.logger.Debug("waiting for progress events", zap.Int("categories", len(a.order)))
	for {
		evt, err := src.Next(ctx)
		if err != nil {
			break
		}
		a.Handle(evt)
	}
	for {
		evt, ok := src.TryNext()
		if !ok {
			break
		}
		a.Handle(evt)
	}
	a.closeDisplays()
}

// Handle applies a single event. Progress events create the counter on first
// sight, keep the first reported total, and add Step to Consumed. Finished
// events force a refresh whether or not Consumed reached Total.
func (a *Aggregator) Handle(evt Event) {
	if err := evt.Validate(); err != nil {
		a.ignored.Add(1)
		a.logger.Debug("ignoring invalid progress event", zap.Error(err))
		return
	}
	if _, ok := a.active[evt.Category]; !ok {
		a.ignored.Add(1)
		a.logger.Debug("ignoring progress event for inactive category",
			zap.String("category", string(evt.Category)))
		return
	}
	a.handled.Add(1)

	a.mu.Lock()
	ctr := a.counters[evt.Category]
	if ctr == nil {
		ctr = &Counter{Category: evt.Category}
		a.counters[evt.Category] = ctr
	}
	switch evt.Kind {
	case KindProgress:
		if ctr.Total == nil && evt.Total != nil {
			total := *evt.Total
			ctr.Total = &total
		}
		ctr.Consumed += evt.Step
	case KindFinished:
		ctr.Finished = true
	}
	snap := ctr.clone()
	a.mu.Unlock()

	a.render(snap, evt.Kind == KindFinished)
}

// Counter returns a copy of the counter for c, if one exists yet.
func (a *Aggregator) Counter(c Category) (Counter, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ctr, ok := a.counters[c]
	if !ok {
		return Counter{}, false
	}
	return ctr.clone(), true
}

// Snapshot returns copies of all existing counters in display order.
func (a *Aggregator) Snapshot() []Counter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Counter, 0, len(a.counters))
	for _, c := range a.order {
		if ctr, ok := a.counters[c]; ok {
			out = append(out, ctr.clone())
		}
	}
	return out
}

// Stats reports how many events were applied, ignored, and how many display
// calls failed.
func (a *Aggregator) Stats() (handled, ignored, displayErrors int64) {
	return a.handled.Load(), a.ignored.Load(), a.displayErrors.Load()
}

func (a *Aggregator) render(c Counter, refresh bool) {
	for _, d := range a.displays {
		if d == nil {
			continue
		}
		derr := callDisplay(d, c, refresh)
		if derr == nil {
			continue
		}
		a.displayErrors.Add(1)
		a.logger.Warn("progress display update failed",
			zap.String("category", string(c.Category)),
			zap.Bool("refresh", refresh),
			zap.Error(derr))
		if a.onError != nil {
			a.onError(derr)
		}
	}
}

func callDisplay(d Display, c Counter, refresh bool) (derr *DisplayError) {
	defer func() {
		if rec := recover(); rec != nil {
			derr = &DisplayError{Category: c.Category, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	var err error
	if refresh {
		err = d.Refresh(c)
	} else {
		err = d.Update(c)
	}
	if err != nil {
		return &DisplayError{Category: c.Category, Err: err}
	}
	return nil
}

func (a *Aggregator) closeDisplays() {
	for _, d := range a.displays {
		closer, ok := d.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			a.logger.Warn("progress display close failed", zap.Error(err))
		}
	}
}
