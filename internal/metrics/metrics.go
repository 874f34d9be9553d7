// Package metrics exposes shortener counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shortener"

// Metrics owns a private registry so that several instances can coexist in tests.
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	collisions  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Number of URL submissions by outcome.",
		}, []string{"outcome"}),
		collisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_collisions_total",
			Help:      "Number of generated short codes that were already taken.",
		}),
	}
}

func (m *Metrics) SubmissionCompleted(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CodeCollision() {
	m.collisions.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
