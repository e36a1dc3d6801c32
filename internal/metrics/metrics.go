// Package metrics exposes Prometheus metrics for mutations, HTTP traffic and
// collection sizes.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatch-dashboard/internal/mutation"
	"dispatch-dashboard/internal/store"
)

// Collector bundles the dashboard's metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Mutations         *prometheus.CounterVec
	MutationDurations *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	Entities          *prometheus.GaugeVec
	Unassigned        *prometheus.GaugeVec
}

// New registers the metrics against reg, defaulting to the global registry
// when nil. Registering twice against the same registry reuses the existing
// collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	mutations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_mutations_total",
		Help: "Mutations by entity kind, operation and outcome.",
	}, []string{"kind", "op", "outcome"}), "dispatch_mutations_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_mutation_duration_seconds",
		Help:    "Backend round trip of a mutation in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind", "op"}), "dispatch_mutation_duration_seconds")
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"}), "dispatch_http_requests_total")
	if err != nil {
		return nil, err
	}
	entities, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_entities",
		Help: "Current number of canonical entities by kind.",
	}, []string{"kind"}), "dispatch_entities")
	if err != nil {
		return nil, err
	}
	unassigned, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_unassigned_entities",
		Help: "Cars and users with no resolved hospital.",
	}, []string{"kind"}), "dispatch_unassigned_entities")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Mutations:         mutations,
		MutationDurations: durations,
		HTTPRequests:      requests,
		Entities:          entities,
		Unassigned:        unassigned,
	}, nil
}

// Observe records a finished mutation. Rejected mutations never reached the
// backend and are not timed.
func (c *Collector) Observe(ev mutation.Event) {
	if c == nil {
		return
	}
	kind := string(ev.Kind)
	c.Mutations.WithLabelValues(kind, ev.Op, string(ev.Outcome)).Inc()
	if ev.Outcome != mutation.OutcomeRejected {
		c.MutationDurations.WithLabelValues(kind, ev.Op).Observe(ev.Duration.Seconds())
	}
}

// SetCounts drives the entity gauges.
func (c *Collector) SetCounts(n store.Counts) {
	if c == nil {
		return
	}
	c.Entities.WithLabelValues("hospital").Set(float64(n.Hospitals))
	c.Entities.WithLabelValues("car").Set(float64(n.Cars))
	c.Entities.WithLabelValues("user").Set(float64(n.Users))
	c.Unassigned.WithLabelValues("car").Set(float64(n.UnassignedCars))
	c.Unassigned.WithLabelValues("user").Set(float64(n.UnassignedUsers))
}

// StoreListener refreshes the gauges after every committed store change.
func (c *Collector) StoreListener(st *store.Store) store.Listener {
	return func(store.Change) { c.SetCounts(st.Counts()) }
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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
