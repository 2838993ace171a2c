package progress

import (
	"context"
	"fmt"
)

type printDisplay struct{}

func (printDisplay) Update(Counter) error { return nil }

func (printDisplay) Refresh(c Counter) error {
	fmt.Printf("%s: %s\n", c.Category.Label(), c)
	return nil
}

// ExampleAggregator_Run demonstrates draining a channel into counters.
func ExampleAggregator_Run() {
	ch := NewChannel(nil)
	agg := NewAggregator(AggregatorConfig{Categories: EdgeCategories}, printDisplay{})

	ch.Emit(Advance(CategoryEdgeCompute, 40, 100))
	ch.Emit(Advance(CategoryEdgeCompute, 60, 120))
	ch.Emit(Finished(CategoryEdgeCompute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg.Run(ctx, ch)
	// Output:
	// SD edges calc: 100/100
}
