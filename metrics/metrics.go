// Package metrics counts rows through a run and can push them to a
// Prometheus Pushgateway at the end of the batch.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const Job = "ffiec_income"

type Collector struct {
	registry *prometheus.Registry

	rowsRead    prometheus.Counter
	rowsDropped *prometheus.CounterVec
	rowsWritten prometheus.Counter
	runDuration prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewCollector(mode string) *Collector {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"mode": mode}

	c := &Collector{
		registry: registry,
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ffiec_rows_read_total",
			Help:        "Flat file rows read",
			ConstLabels: labels,
		}),
		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ffiec_rows_dropped_total",
			Help:        "Rows dropped by the transformer or the dev filter",
			ConstLabels: labels,
		}, []string{"reason"}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ffiec_rows_written_total",
			Help:        "Records written to the NDJSON output",
			ConstLabels: labels,
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ffiec_run_duration_seconds",
			Help:        "Wall time of the last run",
			ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ffiec_last_success_timestamp_seconds",
			Help:        "Unix time of the last successful run",
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(c.rowsRead, c.rowsDropped, c.rowsWritten, c.runDuration, c.lastSuccess)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RowRead()                 { c.rowsRead.Inc() }
func (c *Collector) RowDropped(reason string) { c.rowsDropped.WithLabelValues(reason).Inc() }
func (c *Collector) RowWritten()              { c.rowsWritten.Inc() }

// Finish records the run duration and, on success, the completion time.
func (c *Collector) Finish(d time.Duration, ok bool) {
	c.runDuration.Set(d.Seconds())
	if ok {
		c.lastSuccess.SetToCurrentTime()
	}
}

// Push sends the registry to the Pushgateway at url.
func (c *Collector) Push(ctx context.Context, url string) error {
	if err := push.New(url, Job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
