package pipeline

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/JakeFAU/dirgather/internal/workpool"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultDirectoryWorkers = 4
	DefaultDataWorkers      = 100
	DefaultShareDepth       = 1
	// EdgeBufferSize is handed to the edge calculator as its batch size.
	EdgeBufferSize = 100
)

// ShareCategoryAll requests every share-gathering category.
const ShareCategoryAll = "all"

// ShareCategories lists the accepted share-gathering categories.
var ShareCategories = []string{ShareCategoryAll, "shares", "sessions", "localgroups", "finger"}

// Pool is the worker pool optionally shared with the edge phase.
// *workpool.Pool satisfies it.
type Pool interface {
	Size() int
	Run(ctx context.Context, tasks ...workpool.Task) error
}

// Config is captured by New and never modified afterwards.
type Config struct {
	// StorageURL is where collaborators persist their output.
	StorageURL string `validate:"required"`
	// WorkDir is the staging root; empty means the current directory.
	WorkDir string
	// DirectoryURL enables the directory phase.
	DirectoryURL string
	// DataURL enables the data phase and, with ShareEnum, the share-content phase.
	DataURL string
	// DatasetID requests resumption: the directory phase is skipped and
	// DatasetID and GraphID are handed to later phases as-is.
	DatasetID string
	GraphID   string

	DirectoryWorkers int `validate:"gte=0"`
	DataWorkers      int `validate:"gte=0"`

	ShareEnum       bool
	ShareDepth      int      `validate:"gte=0"`
	ShareCategories []string `validate:"dive,oneof=all shares sessions localgroups finger"`

	CalcEdges bool
	Pool      Pool `validate:"-"`

	// DNSServer overrides resolver endpoint selection.
	DNSServer string
	// ShowProgress starts the aggregator when no external sink is supplied.
	ShowProgress bool
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		DirectoryWorkers: DefaultDirectoryWorkers,
		DataWorkers:      DefaultDataWorkers,
		ShareDepth:       DefaultShareDepth,
		ShareCategories:  []string{ShareCategoryAll},
		CalcEdges:        true,
		ShowProgress:     true,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.DirectoryWorkers == 0 {
		c.DirectoryWorkers = DefaultDirectoryWorkers
	}
	if c.DataWorkers == 0 {
		c.DataWorkers = DefaultDataWorkers
	}
	if c.ShareDepth == 0 {
		c.ShareDepth = DefaultShareDepth
	}
	if len(c.ShareCategories) == 0 {
		c.ShareCategories = []string{ShareCategoryAll}
	} else {
		c.ShareCategories = append([]string(nil), c.ShareCategories...)
	}
	return c
}

// Resuming reports whether a dataset identifier was supplied.
func (c Config) Resuming() bool {
	return c.DatasetID != ""
}
