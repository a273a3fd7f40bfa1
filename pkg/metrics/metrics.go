package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	VerificationResults  *prometheus.CounterVec
	BidsPlaced           prometheus.Counter
	BidsAccepted         prometheus.Counter
	Settlements          *prometheus.CounterVec
	WebhookNotifications *prometheus.CounterVec
	GatewayCalls         *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invfin",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		VerificationResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "invoice_verification_total",
			Help:      "Invoice verification outcomes.",
		}, []string{"result"}),
		BidsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "bids_placed_total",
			Help:      "Bids placed on invoices.",
		}),
		BidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "bids_accepted_total",
			Help:      "Bids accepted by sellers.",
		}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "settlements_total",
			Help:      "Funding settlements applied, by confirmation path.",
		}, []string{"path"}),
		WebhookNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "webhook_notifications_total",
			Help:      "Gateway webhook notifications by outcome.",
		}, []string{"outcome"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invfin",
			Name:      "external_calls_total",
			Help:      "Calls to external collaborators by target and result.",
		}, []string{"target", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		m.HTTPRequests,
		m.HTTPDuration,
		m.VerificationResults,
		m.BidsPlaced,
		m.BidsAccepted,
		m.Settlements,
		m.WebhookNotifications,
		m.GatewayCalls,
	)
	return m
}

// ObserveExternal counts one call to an external collaborator.
func (m *Metrics) ObserveExternal(target string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayCalls.WithLabelValues(target, result).Inc()
}

// VerificationResult counts one verification engine outcome.
func (m *Metrics) VerificationResult(result string) {
	if m == nil {
		return
	}
	m.VerificationResults.WithLabelValues(result).Inc()
}

func (m *Metrics) BidPlaced() {
	if m == nil {
		return
	}
	m.BidsPlaced.Inc()
}

func (m *Metrics) BidAccepted() {
	if m == nil {
		return
	}
	m.BidsAccepted.Inc()
}

// Settlement counts a funding settlement applied via path ("verify" or "webhook").
func (m *Metrics) Settlement(path string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(path).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookNotifications.WithLabelValues(outcome).Inc()
}
