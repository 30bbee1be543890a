package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	checkpointEvalCounter  *prometheus.CounterVec
	otpVerificationCounter *prometheus.CounterVec
	settlementCounter      *prometheus.CounterVec
	ledgerImbalanceCounter prometheus.Counter
	idempotencyCounter     *prometheus.CounterVec
	expiredTxCounter       prometheus.Counter
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		checkpointEvalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_evaluations_total",
			Help: "Checkpoint gate evaluation outcomes",
		}, []string{"outcome"})

		otpVerificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification outcomes",
		}, []string{"outcome"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement attempts by outcome",
		}, []string{"outcome"})

		ledgerImbalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times double-entry balances diverged",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		expiredTxCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transactions_expired_total",
			Help: "Pending transactions retired by the expiry sweep",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			checkpointEvalCounter,
			otpVerificationCounter,
			settlementCounter,
			ledgerImbalanceCounter,
			idempotencyCounter,
			expiredTxCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementCheckpointEvaluation(outcome string) {
	if checkpointEvalCounter == nil {
		return
	}
	checkpointEvalCounter.WithLabelValues(outcome).Inc()
}

func IncrementOtpVerification(outcome string) {
	if otpVerificationCounter == nil {
		return
	}
	otpVerificationCounter.WithLabelValues(outcome).Inc()
}

func IncrementSettlement(outcome string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(outcome).Inc()
}

func IncrementLedgerImbalance() {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func AddExpiredTransactions(count int) {
	if expiredTxCounter == nil || count <= 0 {
		return
	}
	expiredTxCounter.Add(float64(count))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
