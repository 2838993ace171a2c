package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/progress"
	"github.com/JakeFAU/dirgather/internal/store"
)

const defaultStoreTimeout = 5 * time.Second

// StoreDisplay persists counters of one run through a store.RunRepository.
// Updates are only remembered; a category is written when it finishes, and
// anything still pending is written on Close.
type StoreDisplay struct {
	repo    store.RunRepository
	runID   uuid.UUID
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[progress.Category]progress.Counter
	order   []progress.Category
}

// StoreDisplayConfig wires a StoreDisplay.
type StoreDisplayConfig struct {
	Repo    store.RunRepository
	RunID   uuid.UUID
	Timeout time.Duration
	Now     func() time.Time
	Logger  *zap.Logger
}

// NewStoreDisplay constructs a StoreDisplay for the provided run.
func NewStoreDisplay(cfg StoreDisplayConfig) *StoreDisplay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &StoreDisplay{
		repo:    cfg.Repo,
		runID:   cfg.RunID,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		logger:  cfg.Logger,
		pending: make(map[progress.Category]progress.Counter),
	}
}

// Update records c for a later write.
func (d *StoreDisplay) Update(c progress.Counter) error {
	if d == nil || d.repo == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[c.Category]; !ok {
		d.order = append(d.order, c.Category)
	}
	d.pending[c.Category] = c
	return nil
}

// Refresh writes c immediately.
func (d *StoreDisplay) Refresh(c progress.Counter) error {
	if d == nil || d.repo == nil {
		return nil
	}
	d.mu.Lock()
	delete(d.pending, c.Category)
	d.mu.Unlock()
	return d.write(c)
}

// Close flushes categories that were updated but never refreshed.
func (d *StoreDisplay) Close() error {
	if d == nil || d.repo == nil {
		return nil
	}
	d.mu.Lock()
	var flush []progress.Counter
	for _, c := range d.order {
		if ctr, ok := d.pending[c]; ok {
			flush = append(flush, ctr)
		}
	}
	d.pending = make(map[progress.Category]progress.Counter)
	d.order = nil
	d.mu.Unlock()

	var errs []error
	for _, c := range flush {
		if err := d.write(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *StoreDisplay) write(c progress.Counter) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	var total *int64
	if c.Total != nil {
		t := *c.Total
		total = &t
	}
	err := d.repo.UpsertCategoryProgress(ctx, store.CategoryProgress{
		RunID:     d.runID,
		Category:  string(c.Category),
		Total:     total,
		Consumed:  c.Consumed,
		Finished:  c.Finished,
		UpdatedAt: d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("persist progress for %s: %w", c.Category, err)
	}
	d.logger.Debug("persisted progress", zap.String("category", string(c.Category)), zap.Int64("consumed", c.Consumed))
	return nil
}
