// Package metrics exposes Prometheus collectors for sanitize runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varalys/blockscrub/internal/types"
)

const namespace = "blockscrub"

// Outcome labels beyond the ProcessingError codes.
const (
	OutcomeClean     = "clean"
	OutcomeSanitized = "sanitized"
	OutcomeIOError   = "io_error"
)

// Collector holds the run metrics on a dedicated registry.
type Collector struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	replaced     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	bytes        *prometheus.CounterVec
	formats      prometheus.Gauge
	reloads      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New registers every collector on a fresh registry. Go runtime and
// process collectors are included when withRuntime is set.
func New(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sanitize runs by format and outcome.",
		}, []string{"format", "outcome"}),
		replaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replaced_blocks_total",
			Help:      "Blocks replaced because they did not match the block grammar.",
		}, []string{"format"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent processing one input.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"format"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes read and written by successful runs.",
		}, []string{"format", "direction"}),
		formats: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "formats",
			Help:      "Number of formats currently registered.",
		}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Config reload attempts by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// Observe records one run. err is an I/O or cancellation error; res is nil
// in that case.
func (c *Collector) Observe(format string, res *types.ProcessResult, err error, took time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(format).Observe(took.Seconds())
	c.runs.WithLabelValues(format, Outcome(res, err)).Inc()
	if res != nil && res.Success {
		c.replaced.WithLabelValues(format).Add(float64(res.Report.ReplacedBlocks))
		c.bytes.WithLabelValues(format, "in").Add(float64(res.Report.BytesIn))
		c.bytes.WithLabelValues(format, "out").Add(float64(res.Report.BytesOut))
	}
}

// SetFormats records the size of the active registry.
func (c *Collector) SetFormats(n int) {
	if c == nil {
		return
	}
	c.formats.Set(float64(n))
}

// Reload records a config reload attempt.
func (c *Collector) Reload(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.reloads.WithLabelValues(result).Inc()
}

// Request counts one HTTP request.
func (c *Collector) Request(route string, code int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// WriteFile writes the current values to path in the text format read by
// the node exporter's textfile collector.
func (c *Collector) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Registry exposes the underlying registry for tests and embedding.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Outcome maps a run to its outcome label.
func Outcome(res *types.ProcessResult, err error) string {
	switch {
	case err != nil || res == nil:
		return OutcomeIOError
	case !res.Success:
		return string(res.Error.Code)
	case res.Report.ReplacedBlocks > 0:
		return OutcomeSanitized
	default:
		return OutcomeClean
	}
}
