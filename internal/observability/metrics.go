package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Zachdehooge/traffic-dashboard/internal/visualizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the dashboard's Prometheus metrics. It satisfies
// visualizer.Recorder and fetcher.RequestObserver.
type Collector struct {
	gatherer prometheus.Gatherer

	RenderPasses    prometheus.Counter
	RenderedMarkers prometheus.Gauge
	CategoryCount   *prometheus.GaugeVec

	BackendRequests  *prometheus.CounterVec
	BackendDurations *prometheus.HistogramVec
}

// NewCollector registers the dashboard metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	passes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "render_passes_total",
		Help: "Total number of completed render passes.",
	}), "render_passes_total")
	if err != nil {
		return nil, err
	}

	markers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rendered_markers",
		Help: "Number of markers placed by the latest render pass.",
	}), "rendered_markers")
	if err != nil {
		return nil, err
	}

	categories, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prediction_category_count",
		Help: "Per-category prediction counts of the latest render pass.",
	}, []string{"category", "value"}), "prediction_category_count")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_requests_total",
		Help: "Total number of prediction backend calls, labeled by endpoint and HTTP status (0 when unreachable).",
	}, []string{"endpoint", "code"}), "backend_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Prediction backend call latency in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"}), "backend_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		RenderPasses:     passes,
		RenderedMarkers:  markers,
		CategoryCount:    categories,
		BackendRequests:  requests,
		BackendDurations: durations,
	}, nil
}

// ObserveRender records one completed render pass.
func (c *Collector) ObserveRender(markers int, stats visualizer.Stats) {
	if c == nil {
		return
	}
	c.RenderPasses.Inc()
	c.RenderedMarkers.Set(float64(markers))
	for _, cc := range stats.Counts() {
		c.CategoryCount.WithLabelValues(cc.Category, cc.Value).Set(float64(cc.Count))
	}
}

// ObserveBackendRequest records one prediction backend call.
func (c *Collector) ObserveBackendRequest(endpoint string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.BackendRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	c.BackendDurations.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
