package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestAggregatorSumsStepsAndKeepsFirstTotal covers lazy creation, summing, and first-total-wins.
func TestAggregatorSumsStepsAndKeepsFirstTotal(t *testing.T) {
	t.Parallel()

	display := newRecordingDisplay()
	agg := NewAggregator(AggregatorConfig{}, display)

	_, ok := agg.Counter(CategoryDirectoryBasic)
	require.False(t, ok)

	agg.Handle(Advance(CategoryDirectoryBasic, 3, 10))
	agg.Handle(Advance(CategoryDirectoryBasic, 4, 99))
	agg.Handle(Advance(CategoryDirectoryBasic, 5, 0))

	ctr, ok := agg.Counter(CategoryDirectoryBasic)
	require.True(t, ok)
	require.Equal(t, int64(12), ctr.Consumed)
	require.True(t, ctr.HasTotal())
	require.Equal(t, int64(10), *ctr.Total)
	require.False(t, ctr.Finished)
	require.Len(t, display.Updates(), 3)
	require.Empty(t, display.Refreshes())
}

// TestAggregatorTotalSetByLaterEvent ensures a total arriving after totalless events is kept.
func TestAggregatorTotalSetByLaterEvent(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(AggregatorConfig{})
	agg.Handle(Advance(CategoryShareEnum, 1, 0))
	ctr, _ := agg.Counter(CategoryShareEnum)
	require.False(t, ctr.HasTotal())
	require.Equal(t, "1", ctr.String())

	agg.Handle(Advance(CategoryShareEnum, 1, 40))
	agg.Handle(Advance(CategoryShareEnum, 1, 50))
	ctr, _ = agg.Counter(CategoryShareEnum)
	require.Equal(t, int64(40), *ctr.Total)
	require.Equal(t, "3/40", ctr.String())
}

// TestAggregatorFinishedForcesRefresh verifies completion refreshes even below the total.
func TestAggregatorFinishedForcesRefresh(t *testing.T) {
	t.Parallel()

	display := newRecordingDisplay()
	agg := NewAggregator(AggregatorConfig{}, display)

	agg.Handle(Advance(CategoryEdgeCompute, 2, 100))
	agg.Handle(Finished(CategoryEdgeCompute))

	refreshes := display.Refreshes()
	require.Len(t, refreshes, 1)
	require.Equal(t, CategoryEdgeCompute, refreshes[0].Category)
	require.Equal(t, int64(2), refreshes[0].Consumed)
	require.True(t, refreshes[0].Finished)
	require.InDelta(t, 0.02, refreshes[0].Fraction(), 1e-9)
}

// TestAggregatorIgnoresInactiveAndUnknownCategories checks filtering never fails the loop.
func TestAggregatorIgnoresInactiveAndUnknownCategories(t *testing.T) {
	t.Parallel()

	display := newRecordingDisplay()
	agg := NewAggregator(AggregatorConfig{Categories: EdgeCategories}, display)

	agg.Handle(Advance(CategoryDirectoryBasic, 1, 0))
	agg.Handle(Advance(Category("printer_enum"), 1, 0))
	agg.Handle(Advance(CategoryEdgeUpload, 1, 0))

	require.Len(t, agg.Snapshot(), 1)
	handled, ignored, _ := agg.Stats()
	require.Equal(t, int64(1), handled)
	require.Equal(t, int64(2), ignored)
	require.Len(t, display.Updates(), 1)
}

// TestAggregatorDisplayErrorDoesNotStopProcessing ensures a failing category does not block others.
func TestAggregatorDisplayErrorDoesNotStopProcessing(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	display := newRecordingDisplay()
	display.failOn = CategoryDirectorySD
	display.panicOn = CategoryDirectoryMembership

	var hookCalls []*DisplayError
	agg := NewAggregator(AggregatorConfig{
		Logger: zap.New(core),
		OnDisplayError: func(err *DisplayError) {
			hookCalls = append(hookCalls, err)
		},
	}, display)

	agg.Handle(Advance(CategoryDirectorySD, 1, 0))
	agg.Handle(Advance(CategoryDirectoryMembership, 1, 0))
	agg.Handle(Advance(CategoryShareEnum, 1, 0))

	require.Len(t, display.Updates(), 1)
	require.Equal(t, CategoryShareEnum, display.Updates()[0].Category)

	ctr, ok := agg.Counter(CategoryDirectorySD)
	require.True(t, ok)
	require.Equal(t, int64(1), ctr.Consumed)

	_, _, displayErrors := agg.Stats()
	require.Equal(t, int64(2), displayErrors)
	require.Len(t, hookCalls, 2)
	require.Equal(t, CategoryDirectorySD, hookCalls[0].Category)
	require.True(t, errors.Is(hookCalls[0], errRender))
	require.Equal(t, 2, logs.FilterMessage("progress display update failed").Len())
}

// TestAggregatorRunDrainsAfterCancel verifies buffered events are applied before Run returns.
func TestAggregatorRunDrainsAfterCancel(t *testing.T) {
	t.Parallel()

	display := newRecordingDisplay()
	agg := NewAggregator(AggregatorConfig{}, display)
	ch := NewChannel(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, ch)
		close(done)
	}()

	ch.Emit(Advance(CategoryShareEnum, 2, 4))
	require.Eventually(t, func() bool {
		ctr, ok := agg.Counter(CategoryShareEnum)
		return ok && ctr.Consumed == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	require.True(t, display.Closed())

	// Events emitted before cancellation but never read are drained.
	late := NewAggregator(AggregatorConfig{})
	buffered := NewChannel(nil)
	buffered.Emit(Advance(CategoryShareEnum, 1, 0))
	buffered.Emit(Finished(CategoryShareEnum))
	cancelled, stop := context.WithCancel(context.Background())
	stop()
	late.Run(cancelled, buffered)
	ctr, ok := late.Counter(CategoryShareEnum)
	require.True(t, ok)
	require.True(t, ctr.Finished)
}

// TestCounterFraction covers the clamping rules used by displays.
func TestCounterFraction(t *testing.T) {
	t.Parallel()

	total := int64(4)
	require.InDelta(t, 0.5, Counter{Total: &total, Consumed: 2}.Fraction(), 1e-9)
	require.InDelta(t, 1.0, Counter{Total: &total, Consumed: 9}.Fraction(), 1e-9)
	require.InDelta(t, 0.0, Counter{Consumed: 9}.Fraction(), 1e-9)
	require.InDelta(t, 1.0, Counter{Consumed: 9, Finished: true}.Fraction(), 1e-9)
}

var errRender = errors.New("terminal gone")

type recordingDisplay struct {
	mu        sync.Mutex
	updates   []Counter
	refreshes []Counter
	closed    bool
	failOn    Category
	panicOn   Category
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{}
}

func (d *recordingDisplay) Update(c Counter) error {
	if c.Category == d.failOn {
		return errRender
	}
	if c.Category == d.panicOn {
		panic("row index out of range")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, c)
	return nil
}

func (d *recordingDisplay) Refresh(c Counter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes = append(d.refreshes, c)
	return nil
}

func (d *recordingDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *recordingDisplay) Updates() []Counter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Counter(nil), d.updates...)
}

func (d *recordingDisplay) Refreshes() []Counter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Counter(nil), d.refreshes...)
}

func (d *recordingDisplay) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
