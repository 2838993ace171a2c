package sinks

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/dirgather/internal/progress"
)

// PrometheusDisplay mirrors counters into per-category gauges so progress of a
// long gather can be scraped from the status server.
type PrometheusDisplay struct {
	consumed *prometheus.GaugeVec
	total    *prometheus.GaugeVec
	finished *prometheus.GaugeVec
}

// NewPrometheusDisplay registers the collectors against reg. Collectors that
// are already registered are reused, so several runs in one process share them.
func NewPrometheusDisplay(reg prometheus.Registerer) (*PrometheusDisplay, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	consumed, err := registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "dirgather_progress_consumed",
		Help: "Units of work consumed per progress category.",
	})
	if err != nil {
		return nil, err
	}
	total, err := registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "dirgather_progress_total",
		Help: "Reported total per progress category; absent until known.",
	})
	if err != nil {
		return nil, err
	}
	finished, err := registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "dirgather_progress_finished",
		Help: "1 once a progress category has reported completion.",
	})
	if err != nil {
		return nil, err
	}
	return &PrometheusDisplay{consumed: consumed, total: total, finished: finished}, nil
}

func registerGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts) (*prometheus.GaugeVec, error) {
	vec := prometheus.NewGaugeVec(opts, []string{"category"})
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register progress collector %s: %w", opts.Name, err)
	}
	return vec, nil
}

// Update sets the gauges for c.
func (d *PrometheusDisplay) Update(c progress.Counter) error {
	label := string(c.Category)
	d.consumed.WithLabelValues(label).Set(float64(c.Consumed))
	if c.Total != nil {
		d.total.WithLabelValues(label).Set(float64(*c.Total))
	}
	if c.Finished {
		d.finished.WithLabelValues(label).Set(1)
	} else {
		d.finished.WithLabelValues(label).Set(0)
	}
	return nil
}

// Refresh is identical to Update; gauges have no redraw cost.
func (d *PrometheusDisplay) Refresh(c progress.Counter) error {
	return d.Update(c)
}
