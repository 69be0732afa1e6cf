package keeper

import (
	"math/big"
	"sync"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MarketMetrics holds all Prometheus metrics for the market module
type MarketMetrics struct {
	// Job metrics
	JobsPosted    prometheus.Counter
	JobsClaimed   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec
	JobsExpired   *prometheus.CounterVec
	JobsSettled   *prometheus.CounterVec
	ActiveJobs    prometheus.Gauge

	// Proof and challenge metrics
	ProofsVerified     *prometheus.CounterVec
	ChallengesRaised   prometheus.Counter
	ChallengesResolved *prometheus.CounterVec

	// Value movement
	EscrowReleased prometheus.Counter
	EscrowRefunded prometheus.Counter
	EscrowReversed prometheus.Counter

	// Security metrics
	Rejections        *prometheus.CounterVec
	SuspiciousSignals *prometheus.CounterVec
	CircuitLevel      prometheus.Gauge
	LevelChanges      *prometheus.CounterVec

	// Housekeeping
	AuditRecords prometheus.Counter
	Settlements  prometheus.Counter
}

var (
	marketMetricsOnce sync.Once
	marketMetrics     *MarketMetrics
)

// NewMarketMetrics creates and registers market metrics (singleton pattern)
func NewMarketMetrics() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketMetrics = &MarketMetrics{
			JobsPosted: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "jobs_posted_total",
				Help:      "Total jobs posted",
			}),
			JobsClaimed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "jobs_claimed_total",
				Help:      "Total successful job claims",
			}),
			JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "jobs_completed_total",
				Help:      "Total jobs completed with a verified proof",
			}),
			JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "jobs_failed_total",
				Help:      "Total job failures by outcome",
			}, []string{"outcome"}),
			JobsExpired: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "jobs_expired_total",
				Help:      "Total jobs expired by path",
			}, []string{"path"}),
			JobsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "jobs_settled_total",
				Help:      "Total jobs settled by winning side",
			}, []string{"outcome"}),
			ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "active_jobs",
				Help:      "Jobs currently posted, claimed, completed or disputed",
			}),

			ProofsVerified: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "proofs_verified_total",
				Help:      "Total proof verifications by result",
			}, []string{"result"}),
			ChallengesRaised: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "challenges_raised_total",
				Help:      "Total staked challenges raised",
			}),
			ChallengesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "challenges_resolved_total",
				Help:      "Total challenges resolved by outcome",
			}, []string{"outcome"}),

			EscrowReleased: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "escrow_released_total",
				Help:      "Total value released from escrow",
			}),
			EscrowRefunded: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "escrow_refunded_total",
				Help:      "Total value refunded from escrow",
			}),
			EscrowReversed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "escrow_reversed_total",
				Help:      "Total released value recovered by reversals",
			}),

			Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "abuse_rejections_total",
				Help:      "Calls rejected as abuse by operation",
			}, []string{"function"}),
			SuspiciousSignals: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "suspicious_signals_total",
				Help:      "Suspicious activity signals by kind",
			}, []string{"signal"}),
			CircuitLevel: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "circuit_level",
				Help:      "Current circuit breaker level (0 monitoring, 1 throttled, 2 paused)",
			}),
			LevelChanges: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "circuit_level_changes_total",
				Help:      "Circuit breaker level changes by destination level",
			}, []string{"level"}),

			AuditRecords: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "audit_records_total",
				Help:      "Audit records written",
			}),
			Settlements: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "paw",
				Subsystem: "market",
				Name:      "settlement_sweep_total",
				Help:      "Jobs settled by the end-of-block sweep",
			}),
		}
	})
	return marketMetrics
}

// amountValue converts an amount for a Prometheus counter. Amounts are
// unbounded, so the conversion goes through big.Float and loses precision
// instead of overflowing.
func amountValue(amount math.Int) float64 {
	if amount.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount.BigInt()).Float64()
	return f
}
