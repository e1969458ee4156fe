package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch records symbol dispatch metrics. A nil *Dispatch is valid and
// records nothing.
type Dispatch struct {
	registry *prometheus.Registry

	callsTotal     *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	notFoundTotal  prometheus.Counter
	forwardedTotal prometheus.Counter
}

// New registers the dispatch metrics on a private registry so several
// runtimes (and tests) can coexist in one process.
func New() *Dispatch {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Dispatch{
		registry: reg,
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rigz_dispatch_total",
				Help: "Total number of module function calls by outcome",
			},
			[]string{"module", "status"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rigz_dispatch_duration_seconds",
				Help:    "Module function call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module"},
		),
		notFoundTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rigz_symbol_not_found_total",
			Help: "Symbols no module could resolve",
		}),
		forwardedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rigz_forwarded_calls_total",
			Help: "Function call results dispatched again by the evaluator",
		}),
	}
}

// ObserveCall records one module call. status is the module status code
// name (ok, not_found, error).
func (d *Dispatch) ObserveCall(module, status string, elapsed time.Duration) {
	if d == nil {
		return
	}
	d.callsTotal.WithLabelValues(module, status).Inc()
	d.callDuration.WithLabelValues(module).Observe(elapsed.Seconds())
}

func (d *Dispatch) SymbolNotFound() {
	if d == nil {
		return
	}
	d.notFoundTotal.Inc()
}

func (d *Dispatch) Forwarded() {
	if d == nil {
		return
	}
	d.forwardedTotal.Inc()
}

func (d *Dispatch) Registry() *prometheus.Registry {
	if d == nil {
		return nil
	}
	return d.registry
}

// Handler exposes the registry in the Prometheus text format.
func (d *Dispatch) Handler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}
