// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer and login outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Transfers          *prometheus.CounterVec
	TransferredAmount  prometheus.Counter
	Logins             *prometheus.CounterVec
	UsersRegistered    prometheus.Counter
	CardStatusChanges  *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transfers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_transfers_total",
			Help: "Card-to-card transfers by outcome",
		}, []string{"outcome"}),
		TransferredAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "bank_transferred_amount_total",
			Help: "Sum of successfully transferred amounts",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "bank_users_registered_total",
			Help: "Users created through registration",
		}),
		CardStatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_card_status_changes_total",
			Help: "Card status transitions by target status",
		}, []string{"status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "method", "code"}),
		HTTPRequestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bank_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
