package progress

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent is returned by Event.Validate for malformed payloads.
var ErrInvalidEvent = errors.New("invalid progress event")

// Category identifies which part of the pipeline an Event belongs to.
type Category string

// Supported progress categories, in display order.
const (
	CategoryDirectoryBasic            Category = "directory_basic"
	CategoryDirectorySD               Category = "directory_sd"
	CategoryDirectorySDUpload         Category = "directory_sd_upload"
	CategoryDirectoryMembership       Category = "directory_membership"
	CategoryDirectoryMembershipUpload Category = "directory_membership_upload"
	CategoryShareEnum                 Category = "share_enum"
	CategoryEdgeCompute               Category = "edge_compute"
	CategoryEdgeUpload                Category = "edge_upload"
)

// DirectoryCategories are reported by the directory enumerator.
var DirectoryCategories = []Category{
	CategoryDirectoryBasic,
	CategoryDirectorySD,
	CategoryDirectorySDUpload,
	CategoryDirectoryMembership,
	CategoryDirectoryMembershipUpload,
}

// EdgeCategories are reported by the edge calculator.
var EdgeCategories = []Category{
	CategoryEdgeCompute,
	CategoryEdgeUpload,
}

var categoryLabels = map[Category]string{
	CategoryDirectoryBasic:            "Directory basic enum",
	CategoryDirectorySD:               "Directory SD enum",
	CategoryDirectorySDUpload:         "Directory SD upload",
	CategoryDirectoryMembership:       "Directory membership enum",
	CategoryDirectoryMembershipUpload: "Directory membership upload",
	CategoryShareEnum:                 "Share enum",
	CategoryEdgeCompute:               "SD edges calc",
	CategoryEdgeUpload:                "SD edges upload",
}

// Known reports whether c is one of the defined categories.
func (c Category) Known() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable description used by displays.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Kind separates partial advances from completion notices.
type Kind string

// Supported event kinds.
const (
	KindProgress Kind = "progress"
	KindFinished Kind = "finished"
)

// Event is a single progress message emitted by a collaborator.
type Event struct {
	// Category scopes the event to one counter.
	Category Category `json:"category"`
	// Kind is either KindProgress or KindFinished.
	Kind Kind `json:"kind"`
	// Total optionally carries the expected item count; only the first
	// reported total for a category is kept.
	Total *int64 `json:"total,omitempty"`
	// Step is the number of items completed since the previous event.
	Step int64 `json:"step"`
}

// Validate performs coarse validation on Event payloads. Unknown categories
// are not an error here; the aggregator ignores them.
func (e Event) Validate() error {
	switch e.Kind {
	case KindProgress, KindFinished:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.Step < 0 {
		return fmt.Errorf("%w: step must be >= 0", ErrInvalidEvent)
	}
	if e.Total != nil && *e.Total < 0 {
		return fmt.Errorf("%w: total must be >= 0", ErrInvalidEvent)
	}
	return nil
}

// Advance builds a progress event. A total <= 0 is treated as unknown.
func Advance(c Category, step, total int64) Event {
	evt := Event{Category: c, Kind: KindProgress, Step: step}
	if total > 0 {
		evt.Total = &total
	}
	return evt
}

// Finished builds a completion event for c.
func Finished(c Category) Event {
	return Event{Category: c, Kind: KindFinished}
}
