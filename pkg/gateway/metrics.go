package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/digiklausur/data-gateway/pkg/auth"
	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/tenancy"
)

// Metrics holds the gateway's prometheus instruments.
type Metrics struct {
	Requests *prometheus.CounterVec
	Denials  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics with reg, defaulting to the
// global registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datagateway_requests_total",
			Help: "Requests handled, partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Denials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datagateway_denials_total",
			Help: "Rejected requests, partitioned by denial reason.",
		}, []string{"reason"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datagateway_request_duration_seconds",
			Help:    "End-to-end request handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "denied"
		m.Denials.WithLabelValues(denialReason(err)).Inc()
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest), errors.Is(err, dataset.ErrInvalidKey):
		return "malformed_request"
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, tenancy.ErrMalformedStoreRef):
		return "malformed_store"
	case errors.Is(err, tenancy.ErrStoreNotBound):
		return "store_not_bound"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
