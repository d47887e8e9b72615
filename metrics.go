package goGuard

import (
	"time"

	internalmetrics "github.com/MrEthical07/goGuard/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	// MetricLoginSuccess counts logins that reached the authenticated state.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected password checks, unknown accounts included.
	MetricLoginFailure
	// MetricLoginLocked counts login attempts refused by an active lockout.
	MetricLoginLocked
	// MetricTwoFactorRequired counts issued two-factor challenges.
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	// MetricChallengeExpired counts second steps presented with a dead challenge.
	MetricChallengeExpired
	// MetricTOTPReplayRejected counts valid codes refused because their step was already spent.
	MetricTOTPReplayRejected
	MetricRecoveryCodeUsed
	MetricRecoveryCodeFailed
	MetricRecoveryCodesGenerated
	// MetricDeviceTrusted counts issued device remember tokens.
	MetricDeviceTrusted
	// MetricDeviceTrustAccepted counts logins that skipped the second factor.
	MetricDeviceTrustAccepted
	MetricDeviceRevoked
	// MetricAccountLocked counts lockout windows opened by failures or administrators.
	MetricAccountLocked
	// MetricLockoutCleared counts administrative unlocks.
	MetricLockoutCleared
	MetricTOTPEnabled
	MetricTOTPDisabled
	MetricSecretRevealed
	MetricSecretRevealFailed
	// MetricRateLimitHit counts requests refused by an attempt limiter.
	MetricRateLimitHit
	// MetricAdminAction counts successful administrative account changes.
	MetricAdminAction
	// MetricLoginLatency is the only id with a latency histogram.
	MetricLoginLatency
	metricIDCount
)

// Metrics is the engine's counter set.
type Metrics struct {
	registry *internalmetrics.Registry
}

// NewMetrics allocates counters for every MetricID. With
// cfg.EnableLatencyHistograms, MetricLoginLatency also keeps a histogram.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		registry: internalmetrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms, MetricLoginLatency),
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.registry.Enabled()
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.registry.LatencyEnabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil {
		return
	}
	m.registry.Inc(id)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil {
		return
	}
	m.registry.Observe(id, d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return m.registry.Value(id)
}

// Snapshot copies the current values. A disabled Metrics returns empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.registry.Snapshot()
}
