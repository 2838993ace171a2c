package progress

import "fmt"

// DisplayError reports a failure while rendering one category. It is never
// fatal: the aggregator logs it and keeps consuming events.
type DisplayError struct {
	Category Category
	Err      error
}

func (e *DisplayError) Error() string {
	return fmt.Sprintf("display %s: %v", e.Category, e.Err)
}

func (e *DisplayError) Unwrap() error {
	return e.Err
}
