package sinks

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/dirgather/internal/progress"
)

// LogDisplay writes counters as structured log lines. Updates log at debug
// level; completion refreshes log at info.
type LogDisplay struct {
	logger *zap.Logger
}

// NewLogDisplay wires a Zap logger to the display interface.
func NewLogDisplay(logger *zap.Logger) *LogDisplay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDisplay{logger: logger}
}

// Update logs the counter at debug level.
func (d *LogDisplay) Update(c progress.Counter) error {
	d.logger.Debug("progress", counterFields(c)...)
	return nil
}

// Refresh logs the counter at info level.
func (d *LogDisplay) Refresh(c progress.Counter) error {
	d.logger.Info("progress category finished", counterFields(c)...)
	return nil
}

func counterFields(c progress.Counter) []zap.Field {
	fields := []zap.Field{
		zap.String("category", string(c.Category)),
		zap.Int64("consumed", c.Consumed),
		zap.Bool("finished", c.Finished),
	}
	if c.Total != nil {
		fields = append(fields, zap.Int64("total", *c.Total))
	}
	return fields
}
