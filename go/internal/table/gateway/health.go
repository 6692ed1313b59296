package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthStatus struct {
	Healthy       bool     `json:"healthy"`
	HubRunning    bool     `json:"hub_running"`
	HubPending    int      `json:"hub_pending"`
	HubHandled    uint64   `json:"hub_handled"`
	Connections   int      `json:"connections"`
	Sessions      int      `json:"sessions"`
	MirrorEnabled bool     `json:"mirror_enabled"`
	NATSConnected bool     `json:"nats_connected"`
	Errors        []string `json:"errors"`
}

// HealthChecker reports on the hub, the connections and the mirror
type HealthChecker struct {
	service  *Service
	registry *prometheus.Registry
	metrics  http.Handler
}

func NewHealthChecker(service *Service) *HealthChecker {
	h := &HealthChecker{
		service:  service,
		registry: prometheus.NewRegistry(),
	}
	h.registry.MustRegister(&tableCollector{health: h})
	h.metrics = promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	return h
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	s := h.service
	status := HealthStatus{
		Healthy:     true,
		HubRunning:  s.hub.Running(),
		HubPending:  s.hub.Pending(),
		HubHandled:  s.hub.Handled(),
		Connections: s.connectionManager.GetConnectionStats().TotalConnections,
		Errors:      []string{},
	}

	if !status.HubRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "hub not running")
	} else {
		sessions, err := s.Sessions(ctx)
		if err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("hub did not answer: %v", err))
		}
		status.Sessions = sessions
	}

	// The mirror is optional; a disconnected mirror degrades nothing the table needs
	if s.mirror != nil {
		status.MirrorEnabled = true
		status.NATSConnected = s.mirror.Connected()
		if !status.NATSConnected {
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	return status
}

// ServeHTTP writes the health status as JSON
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := h.Check(ctx)

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// ServeMetrics serves the table metrics in the Prometheus exposition format
func (h *HealthChecker) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// Registry returns the registry holding the table collector
func (h *HealthChecker) Registry() *prometheus.Registry {
	return h.registry
}

var (
	healthyDesc = prometheus.NewDesc("table_healthy",
		"Whether the table gateway is healthy", nil, nil)
	hubRunningDesc = prometheus.NewDesc("table_hub_running",
		"Whether the hub loop is running", nil, nil)
	hubHandledDesc = prometheus.NewDesc("table_hub_handled_total",
		"Total number of funcs run on the hub", nil, nil)
	hubPendingDesc = prometheus.NewDesc("table_hub_pending",
		"Current number of queued hub funcs", nil, nil)
	sessionsDesc = prometheus.NewDesc("table_sessions",
		"Current number of live sessions", nil, nil)
	connectionsDesc = prometheus.NewDesc("table_connections",
		"Current number of WebSocket connections", nil, nil)
	broadcastsDesc = prometheus.NewDesc("table_broadcasts_total",
		"Total number of processed broadcasts", nil, nil)
	droppedDesc = prometheus.NewDesc("table_broadcasts_dropped_total",
		"Total number of broadcasts dropped on a full queue", nil, nil)
	evictedDesc = prometheus.NewDesc("table_connections_evicted_total",
		"Total number of slow connections closed", nil, nil)
	natsConnectedDesc = prometheus.NewDesc("table_nats_connected",
		"Whether the event mirror is connected", nil, nil)
)

// tableCollector reads the health status on every scrape
type tableCollector struct {
	health *HealthChecker
}

func (c *tableCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		healthyDesc, hubRunningDesc, hubHandledDesc, hubPendingDesc, sessionsDesc,
		connectionsDesc, broadcastsDesc, droppedDesc, evictedDesc, natsConnectedDesc,
	} {
		ch <- d
	}
}

func (c *tableCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := c.health.Check(ctx)
	stats := c.health.service.connectionManager.GetConnectionStats()

	ch <- prometheus.MustNewConstMetric(healthyDesc, prometheus.GaugeValue, boolGauge(status.Healthy))
	ch <- prometheus.MustNewConstMetric(hubRunningDesc, prometheus.GaugeValue, boolGauge(status.HubRunning))
	ch <- prometheus.MustNewConstMetric(hubHandledDesc, prometheus.CounterValue, float64(status.HubHandled))
	ch <- prometheus.MustNewConstMetric(hubPendingDesc, prometheus.GaugeValue, float64(status.HubPending))
	ch <- prometheus.MustNewConstMetric(sessionsDesc, prometheus.GaugeValue, float64(status.Sessions))
	ch <- prometheus.MustNewConstMetric(connectionsDesc, prometheus.GaugeValue, float64(status.Connections))
	ch <- prometheus.MustNewConstMetric(broadcastsDesc, prometheus.CounterValue, float64(stats.Broadcasts))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(evictedDesc, prometheus.CounterValue, float64(stats.Evicted))
	ch <- prometheus.MustNewConstMetric(natsConnectedDesc, prometheus.GaugeValue, boolGauge(status.NATSConnected))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
