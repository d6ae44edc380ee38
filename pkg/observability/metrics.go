package observability

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peakheight",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Connect RPCs handled, by procedure and code.",
	}, []string{"procedure", "code"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peakheight",
		Subsystem: "rpc",
		Name:      "duration_seconds",
		Help:      "Connect RPC latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"procedure"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peakheight",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Billing webhook deliveries, by event type and outcome.",
	}, []string{"type", "outcome"})
)

// Webhook outcomes.
const (
	OutcomeApplied      = "applied"
	OutcomeIgnored      = "ignored"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
)

// NewMetricsInterceptor records a counter and latency histogram per procedure.
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			procedure := req.Spec().Procedure
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			rpcRequests.WithLabelValues(procedure, code).Inc()
			rpcDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}

// RecordWebhook counts one webhook delivery.
func RecordWebhook(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}
