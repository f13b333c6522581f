package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginRateLimited
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricVerificationRequest
	MetricVerificationConfirmSuccess
	MetricVerificationConfirmFailure
	MetricResetRequest
	MetricResetRateLimited
	MetricResetConfirmSuccess
	MetricResetConfirmFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeReuseRejected
	MetricAccountDeleted
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	MetricStaleSessionRejected
	MetricAuthenticateLatency
	metricIDCount
)

// MetricDef pairs a metric ID with its exposition name and help text.
// The Prometheus exporter iterates these.
type MetricDef struct {
	ID   MetricID
	Name string
	Help string
}

// CounterDefs returns the stable definition list for all counters.
func CounterDefs() []MetricDef {
	return []MetricDef{
		{MetricLoginSuccess, "authcore_login_success_total", "Successful logins."},
		{MetricLoginFailure, "authcore_login_failure_total", "Failed logins (unknown account or password mismatch)."},
		{MetricLoginLocked, "authcore_login_locked_total", "Logins rejected because the account was locked."},
		{MetricLoginRateLimited, "authcore_login_rate_limited_total", "Logins rejected by the throttle."},
		{MetricRegisterSuccess, "authcore_register_success_total", "Accounts created."},
		{MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations rejected for a taken email."},
		{MetricVerificationRequest, "authcore_verification_request_total", "Email verification tokens issued."},
		{MetricVerificationConfirmSuccess, "authcore_verification_confirm_success_total", "Email verifications confirmed."},
		{MetricVerificationConfirmFailure, "authcore_verification_confirm_failure_total", "Email verification confirms rejected."},
		{MetricResetRequest, "authcore_reset_request_total", "Password reset tokens issued."},
		{MetricResetRateLimited, "authcore_reset_rate_limited_total", "Reset requests rejected by the throttle."},
		{MetricResetConfirmSuccess, "authcore_reset_confirm_success_total", "Password resets confirmed."},
		{MetricResetConfirmFailure, "authcore_reset_confirm_failure_total", "Password reset confirms rejected."},
		{MetricPasswordChangeSuccess, "authcore_password_change_success_total", "Password changes."},
		{MetricPasswordChangeInvalidOld, "authcore_password_change_invalid_old_total", "Password changes rejected for a wrong current password."},
		{MetricPasswordChangeReuseRejected, "authcore_password_change_reuse_total", "Password changes rejected for reusing the current password."},
		{MetricAccountDeleted, "authcore_account_deleted_total", "Accounts deleted."},
		{MetricAuthenticateSuccess, "authcore_authenticate_success_total", "Gate checks that attached an account."},
		{MetricAuthenticateFailure, "authcore_authenticate_failure_total", "Gate checks rejected."},
		{MetricStaleSessionRejected, "authcore_stale_session_total", "Tokens rejected for predating a password change."},
	}
}

// LatencyDef returns the definition of the authenticate latency histogram.
func LatencyDef() MetricDef {
	return MetricDef{MetricAuthenticateLatency, "authcore_authenticate_duration_ms", "Authenticate latency in milliseconds."}
}

// HistogramBounds are the upper bucket bounds in milliseconds, last
// bucket unbounded.
var HistogramBounds = [histBucketCount]float64{5, 10, 25, 50, 100, 250, 500, 0}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and an optional latency histogram.
// All methods are safe for concurrent use and no-ops when disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a Metrics instance from cfg. When Enabled is false
// every operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample into the authenticate histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricAuthenticateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot deep-copies every counter and histogram bucket.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
