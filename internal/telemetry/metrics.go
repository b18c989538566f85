package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "lifequiz"

// Metrics holds the quiz controller counters. A nil *Metrics records nothing.
type Metrics struct {
	starts        *prometheus.CounterVec
	interruptions *prometheus.CounterVec
	finalizations *prometheus.CounterVec
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Quiz start attempts by outcome.",
		}, []string{"outcome"}),
		interruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_interruptions_total",
			Help:      "Sessions interrupted because lives ran out, by detection source.",
		}, []string{"source"}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Finalize attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.starts, m.interruptions, m.finalizations)
	return m
}

func (m *Metrics) ObserveStart(outcome string) {
	if m == nil {
		return
	}
	m.starts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveInterruption(source string) {
	if m == nil {
		return
	}
	m.interruptions.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveFinalize(result string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(result).Inc()
}
