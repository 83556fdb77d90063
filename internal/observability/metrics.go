package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpDurationHistogram    *prometheus.HistogramVec
	runCounter               *prometheus.CounterVec
	unitCounter              *prometheus.CounterVec
	gatewayDurationHistogram *prometheus.HistogramVec
	invariantCounter         *prometheus.CounterVec
	runLockCounter           *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		runCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_runs_total",
			Help: "Settlement job run outcomes",
		}, []string{"job", "result"})

		unitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_units_total",
			Help: "Per-unit outcomes of settlement jobs",
		}, []string{"job", "outcome"})

		gatewayDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_transfer_duration_seconds",
			Help:    "Finance Gateway transfer latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"})

		invariantCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_invariant_violations_total",
			Help: "Reconciliation invariant violations",
		}, []string{"check"})

		runLockCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_run_lock_total",
			Help: "Run lock acquisition outcomes",
		}, []string{"job", "outcome"})

		prometheus.MustRegister(
			httpDurationHistogram,
			runCounter,
			unitCounter,
			gatewayDurationHistogram,
			invariantCounter,
			runLockCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementRun(job, result string) {
	if runCounter == nil {
		return
	}
	runCounter.WithLabelValues(job, result).Inc()
}

func AddUnits(job, outcome string, n int) {
	if unitCounter == nil || n <= 0 {
		return
	}
	unitCounter.WithLabelValues(job, outcome).Add(float64(n))
}

func ObserveGatewayTransfer(result string, duration time.Duration) {
	if gatewayDurationHistogram == nil {
		return
	}
	gatewayDurationHistogram.WithLabelValues(result).Observe(duration.Seconds())
}

func IncrementInvariantViolation(check string) {
	if invariantCounter == nil {
		return
	}
	invariantCounter.WithLabelValues(check).Inc()
}

func IncrementRunLock(job, outcome string) {
	if runLockCounter == nil {
		return
	}
	runLockCounter.WithLabelValues(job, outcome).Inc()
}
