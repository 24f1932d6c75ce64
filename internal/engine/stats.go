package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polarismesh/polaris-go/pkg/model"
)

// EngineStats is the optional Prometheus collector set for an Engine,
// grounded on infrastructure/metrics.Metrics's NewWithRegistry pattern:
// a struct of pre-registered collectors, constructible against either the
// default registerer or a caller-supplied one, with its own promhttp
// handler mounted the way infrastructure/service/runner.go mounts
// promhttp.Handler() under "/metrics".
type EngineStats struct {
	registerInstanceTotal   *prometheus.CounterVec
	deregisterInstanceTotal *prometheus.CounterVec
	heartbeatTotal          *prometheus.CounterVec
	discoverEventsTotal     *prometheus.CounterVec
	circuitBreakerTrips     *prometheus.CounterVec
	rateLimitRejects        *prometheus.CounterVec
	invokeDuration          *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewEngineStats builds an EngineStats registered against its own private
// registry, isolated from prometheus.DefaultRegisterer so more than one
// SDKContext in a process (e.g. tests) never collide on metric names.
func NewEngineStats() *EngineStats {
	registry := prometheus.NewRegistry()
	return newEngineStatsWithRegisterer(registry, registry)
}

func newEngineStatsWithRegisterer(registerer prometheus.Registerer, registry *prometheus.Registry) *EngineStats {
	s := &EngineStats{
		registerInstanceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_register_instance_total",
			Help: "Total register_instance calls, by namespace/service/result.",
		}, []string{"namespace", "service", "result"}),
		deregisterInstanceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_deregister_instance_total",
			Help: "Total deregister_instance calls, by namespace/service/result.",
		}, []string{"namespace", "service", "result"}),
		heartbeatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_heartbeat_total",
			Help: "Total heartbeat calls, by namespace/service/result.",
		}, []string{"namespace", "service", "result"}),
		discoverEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_discover_events_total",
			Help: "Total discover events applied to the resource cache, by event type.",
		}, []string{"event_type"}),
		circuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_circuit_breaker_reject_total",
			Help: "Total requests rejected by the circuit breaker, by service.",
		}, []string{"service"}),
		rateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_rate_limit_reject_total",
			Help: "Total requests rejected by the rate limiter, by service.",
		}, []string{"namespace", "service"}),
		invokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polaris_invoke_duration_seconds",
			Help:    "Reported call duration passed to ReportInvokeResult, by service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"namespace", "service"}),
		registry: registry,
	}
	registerer.MustRegister(
		s.registerInstanceTotal,
		s.deregisterInstanceTotal,
		s.heartbeatTotal,
		s.discoverEventsTotal,
		s.circuitBreakerTrips,
		s.rateLimitRejects,
		s.invokeDuration,
	)
	return s
}

// Handler exposes the collectors on a standalone promhttp endpoint, for a
// caller that wants to mount "/metrics" without pulling in a full HTTP
// router dependency.
func (s *EngineStats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *EngineStats) observeRegister(svc model.ServiceKey, err error) {
	s.registerInstanceTotal.WithLabelValues(svc.Namespace, svc.Service, resultLabel(err)).Inc()
}

func (s *EngineStats) observeDeregister(svc model.ServiceKey, err error) {
	s.deregisterInstanceTotal.WithLabelValues(svc.Namespace, svc.Service, resultLabel(err)).Inc()
}

func (s *EngineStats) observeHeartbeat(svc model.ServiceKey, err error) {
	s.heartbeatTotal.WithLabelValues(svc.Namespace, svc.Service, resultLabel(err)).Inc()
}

func (s *EngineStats) observeCircuitBreakerReject(svc model.ServiceKey) {
	s.circuitBreakerTrips.WithLabelValues(svc.String()).Inc()
}

func (s *EngineStats) observeRateLimitReject(svc model.ServiceKey) {
	s.rateLimitRejects.WithLabelValues(svc.Namespace, svc.Service).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
