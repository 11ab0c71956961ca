// Package metrics exposes pipeline counters in the Prometheus text format:
//
//	aitrader_provider_calls_total{voter,provider,result}
//	aitrader_provider_latency_seconds{provider}
//	aitrader_decisions_total{coin,action,consensus}
//	aitrader_orders_total{coin,status}
//	aitrader_permission_denials_total{coin}
//	aitrader_audit_write_failures_total{event}
//	aitrader_health_score
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aitrader/internal/market"
)

// Metrics owns its registry so tests and multiple instances do not collide.
type Metrics struct {
	registry        *prometheus.Registry
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	orders          *prometheus.CounterVec
	denials         *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	healthScore     prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrader_provider_calls_total",
			Help: "Model provider calls by outcome",
		}, []string{"voter", "provider", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aitrader_provider_latency_seconds",
			Help:    "Model provider call latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrader_decisions_total",
			Help: "Arbitrated decisions",
		}, []string{"coin", "action", "consensus"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrader_orders_total",
			Help: "Order batches by terminal status",
		}, []string{"coin", "status"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrader_permission_denials_total",
			Help: "Permission checks that denied an order",
		}, []string{"coin"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrader_audit_write_failures_total",
			Help: "Audit entries that could not be persisted",
		}, []string{"event"}),
		healthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aitrader_health_score",
			Help: "Latest system health score (0-100)",
		}),
	}
	m.registry.MustRegister(
		m.providerCalls,
		m.providerLatency,
		m.decisions,
		m.orders,
		m.denials,
		m.auditFailures,
		m.healthScore,
	)
	return m
}

// ObserveProvider records one voter call.
func (m *Metrics) ObserveProvider(voterID, provider string, ok bool, latency time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.providerCalls.WithLabelValues(voterID, provider, result).Inc()
	if ok {
		m.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
	}
}

// ObserveDecision counts an arbitration outcome.
func (m *Metrics) ObserveDecision(coin market.Coin, action market.Action, consensus string) {
	m.decisions.WithLabelValues(string(coin), string(action), consensus).Inc()
}

// ObserveOrder counts a batch reaching a reported status.
func (m *Metrics) ObserveOrder(coin market.Coin, status string) {
	m.orders.WithLabelValues(string(coin), status).Inc()
}

// ObserveDenial counts a permission denial.
func (m *Metrics) ObserveDenial(coin market.Coin) {
	m.denials.WithLabelValues(string(coin)).Inc()
}

// ObserveAuditFailure counts a dropped audit write.
func (m *Metrics) ObserveAuditFailure(event string) {
	m.auditFailures.WithLabelValues(event).Inc()
}

// SetHealthScore publishes the latest score.
func (m *Metrics) SetHealthScore(score float64) {
	m.healthScore.Set(score)
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
