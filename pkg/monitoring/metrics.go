package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "hsu_bootstrap"

// Renewal outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeSoftFail  = "http_status"
	OutcomeTransport = "transport"
)

// Shutdown results
const (
	ShutdownGraceful = "graceful"
	ShutdownForced   = "forced"
	ShutdownFailed   = "failed"
)

// Metrics holds the bootstrap's collectors on a private registry. All methods
// are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry             *prometheus.Registry
	renewalAttempts      *prometheus.CounterVec
	processUp            *prometheus.GaugeVec
	processExits         *prometheus.CounterVec
	provisioningFailures *prometheus.CounterVec
	shutdowns            *prometheus.CounterVec
	health               *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renewalAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "renewal_attempts_total",
				Help:      "Renewal requests by outcome",
			},
			[]string{"outcome"},
		),
		processUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "process_up",
				Help:      "1 while the supervised process is running",
			},
			[]string{"id"},
		),
		processExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "process_exits_total",
				Help:      "Supervised process exits by exit code",
			},
			[]string{"id", "code"},
		),
		provisioningFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provisioning_failures_total",
				Help:      "Failed provisioning attempts by provisioner",
			},
			[]string{"provisioner"},
		),
		shutdowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "process_shutdowns_total",
				Help:      "Shutdown sequences by result",
			},
			[]string{"result"},
		),
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "health_status",
				Help:      "1 for the current health status of the supervised process",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.renewalAttempts,
		m.processUp,
		m.processExits,
		m.provisioningFailures,
		m.shutdowns,
		m.health,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry backing /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordRenewal(outcome string) {
	if m == nil {
		return
	}
	m.renewalAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetProcessUp(id string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.processUp.WithLabelValues(id).Set(value)
}

func (m *Metrics) RecordExit(id string, code int) {
	if m == nil {
		return
	}
	m.processExits.WithLabelValues(id, strconv.Itoa(code)).Inc()
}

func (m *Metrics) RecordProvisioningFailure(provisioner string) {
	if m == nil {
		return
	}
	m.provisioningFailures.WithLabelValues(provisioner).Inc()
}

func (m *Metrics) RecordShutdown(result string) {
	if m == nil {
		return
	}
	m.shutdowns.WithLabelValues(result).Inc()
}

var healthStatuses = []string{"unknown", "healthy", "degraded", "unhealthy"}

func (m *Metrics) SetHealth(status string) {
	if m == nil {
		return
	}
	for _, s := range healthStatuses {
		value := 0.0
		if s == status {
			value = 1
		}
		m.health.WithLabelValues(s).Set(value)
	}
}
