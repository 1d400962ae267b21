// Package prommetrics exports simulator metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := prommetrics.New(reg, prommetrics.WithConstLabels(prometheus.Labels{"rank": "0"}))
//	sim, _ := ketgo.New(ctx, c, 30, ketgo.WithMetricsCollector(mc))
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "ketgo"

type options struct {
	namespace   string
	constLabels prometheus.Labels
	buckets     []float64
}

// Option configures a Collector.
type Option func(*options)

// WithNamespace sets the metric name prefix. Default "ketgo".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithConstLabels attaches labels to every metric, typically the rank.
func WithConstLabels(l prometheus.Labels) Option {
	return func(o *options) {
		o.constLabels = l
	}
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		o.buckets = b
	}
}

// Collector implements ketgo.MetricsCollector with Prometheus counters and
// histograms.
type Collector struct {
	opLatency *prometheus.HistogramVec
	gates     *prometheus.CounterVec
	swaps     prometheus.Counter
	exchanged prometheus.Counter
	outcomes  *prometheus.CounterVec
}

// New creates a Collector and registers it on reg.
func New(reg prometheus.Registerer, optFns ...Option) (*Collector, error) {
	o := options{
		namespace: defaultNamespace,
		buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
	}
	for _, fn := range optFns {
		fn(&o)
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Name:        "operation_latency_seconds",
			Help:        "Latency of simulator operations",
			Buckets:     o.buckets,
			ConstLabels: o.constLabels,
		}, []string{"op", "status"}),
		gates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "gates_total",
			Help:        "Gates applied, by executor path",
			ConstLabels: o.constLabels,
		}, []string{"path"}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "interchange_swaps_total",
			Help:        "Qubits moved between ranks",
			ConstLabels: o.constLabels,
		}),
		exchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "interchange_bytes_total",
			Help:        "Amplitude bytes sent during interchanges",
			ConstLabels: o.constLabels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "measurements_total",
			Help:        "Measurement outcomes",
			ConstLabels: o.constLabels,
		}, []string{"outcome"}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.gates, c.swaps, c.exchanged, c.outcomes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordApply implements ketgo.MetricsCollector.
func (c *Collector) RecordApply(path string, d time.Duration, err error) {
	c.opLatency.WithLabelValues("apply", status(err)).Observe(d.Seconds())
	if err == nil {
		c.gates.WithLabelValues(path).Inc()
	}
}

// RecordInterchange implements ketgo.MetricsCollector.
func (c *Collector) RecordInterchange(swaps int, bytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("interchange", status(err)).Observe(d.Seconds())
	c.swaps.Add(float64(swaps))
	c.exchanged.Add(float64(bytes))
}

// RecordMeasure implements ketgo.MetricsCollector.
func (c *Collector) RecordMeasure(outcome int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("measure", status(err)).Observe(d.Seconds())
	if err == nil {
		c.outcomes.WithLabelValues(strconv.Itoa(outcome)).Inc()
	}
}
