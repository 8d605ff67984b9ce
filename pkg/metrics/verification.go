package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Verification check outcomes. Indeterminate means the ledger could not be
// consulted, which is distinct from a confirmed absence of the transfer.
const (
	VerificationCompleted     = "completed"
	VerificationPending       = "pending"
	VerificationFailed        = "failed"
	VerificationExpired       = "expired"
	VerificationIndeterminate = "indeterminate"
)

// VerificationMetrics tracks on-chain verification checks and their latency
// against the RPC node.
type VerificationMetrics struct {
	checks     *prometheus.CounterVec
	rpcLatency prometheus.Histogram
	sweeps     prometheus.Counter
	swept      prometheus.Counter
}

// NewVerificationMetrics registers the verification metrics on the provided
// registerer.
func NewVerificationMetrics(reg prometheus.Registerer) *VerificationMetrics {
	if reg == nil {
		return &VerificationMetrics{}
	}
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verification_checks_total",
		Help: "On-chain verification checks by outcome.",
	}, []string{"result"})
	rpcLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solana_rpc_request_seconds",
		Help:    "Latency of Solana RPC round trips.",
		Buckets: prometheus.DefBuckets,
	})
	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_expiry_sweeps_total",
		Help: "Executions of the payment expiry sweep.",
	})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_expired_total",
		Help: "Payments transitioned to expired by the sweep.",
	})
	reg.MustRegister(checks, rpcLatency, sweeps, swept)
	return &VerificationMetrics{
		checks:     checks,
		rpcLatency: rpcLatency,
		sweeps:     sweeps,
		swept:      swept,
	}
}

// IncCheck records the outcome of a single verification check.
func (v *VerificationMetrics) IncCheck(result string) {
	if v == nil || v.checks == nil {
		return
	}
	if result == "" {
		result = VerificationIndeterminate
	}
	v.checks.WithLabelValues(result).Inc()
}

// ObserveRPCLatency records one round trip to the RPC node.
func (v *VerificationMetrics) ObserveRPCLatency(d time.Duration) {
	if v == nil || v.rpcLatency == nil {
		return
	}
	v.rpcLatency.Observe(d.Seconds())
}

// RecordSweep records one expiry sweep and the number of rows it transitioned.
func (v *VerificationMetrics) RecordSweep(expired int64) {
	if v == nil || v.sweeps == nil {
		return
	}
	v.sweeps.Inc()
	v.swept.Add(float64(expired))
}
