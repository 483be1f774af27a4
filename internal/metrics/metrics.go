package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry        *prometheus.Registry
	accountsCreated *prometheus.CounterVec
	logins          *prometheus.CounterVec
	welcomeEmails   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		accountsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "Accounts created, by creation path.",
		}, []string{"provider"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts, by method and outcome.",
		}, []string{"method", "result"}),
		welcomeEmails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "welcome_emails_total",
			Help:      "Welcome email dispatch attempts, by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.accountsCreated, m.logins, m.welcomeEmails)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AccountCreated(provider string) {
	if m == nil {
		return
	}
	m.accountsCreated.WithLabelValues(provider).Inc()
}

func (m *Metrics) Login(method, result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, result).Inc()
}

func (m *Metrics) WelcomeEmail(result string) {
	if m == nil {
		return
	}
	m.welcomeEmails.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
