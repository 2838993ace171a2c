package progress

import "fmt"

// Counter is the running state of one category. Consumed only grows; Total is
// set once, by the first event that carries one.
type Counter struct {
	Category Category `json:"category"`
	Total    *int64   `json:"total,omitempty"`
	Consumed int64    `json:"consumed"`
	Finished bool     `json:"finished"`
}

// HasTotal reports whether a total has been reported for the category.
func (c Counter) HasTotal() bool {
	return c.Total != nil
}

// Fraction returns consumed/total clamped to [0, 1]. Totals are advisory, so
// a counter that overshoots its total renders as complete. Without a total the
// fraction is 0 unless the category has finished.
func (c Counter) Fraction() float64 {
	if c.Total == nil || *c.Total <= 0 {
		if c.Finished {
			return 1
		}
		return 0
	}
	f := float64(c.Consumed) / float64(*c.Total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// String renders "consumed/total" or just "consumed" when no total is known.
func (c Counter) String() string {
	if c.Total == nil {
		return fmt.Sprintf("%d", c.Consumed)
	}
	return fmt.Sprintf("%d/%d", c.Consumed, *c.Total)
}

func (c *Counter) clone() Counter {
	out := *c
	if c.Total != nil {
		total := *c.Total
		out.Total = &total
	}
	return out
}
