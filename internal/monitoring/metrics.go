// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/failures:    Outbound API calls and non-2xx/network failures
//   - unauthorized:         Protected-route 401s that forced a logout
//   - conversions:          Conversion outcomes by tag
//   - reconcile:            Poller runs, balance queries, confirmed grants
//
// Counters live for the process lifetime, which is also the session lifetime.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Conversion outcome tags, mirrored here to keep monitoring a leaf package.
const (
	OutcomeSuccess        = "success"
	OutcomeQuotaExceeded  = "quota_exceeded"
	OutcomeAnonymousLimit = "anonymous_limit_reached"
	OutcomeFailure        = "failure"
)

// Metrics collects operational metrics.
type Metrics struct {
	startedAt time.Time

	// Transport counters
	requests     atomic.Int64
	failures     atomic.Int64
	unauthorized atomic.Int64

	// Conversion counters
	conversionSuccess   atomic.Int64
	conversionQuota     atomic.Int64
	conversionAnonymous atomic.Int64
	conversionFailure   atomic.Int64

	// Reconciliation counters
	reconcileRuns      atomic.Int64
	reconcileAttempts  atomic.Int64
	reconcileConfirmed atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt: time.Now(),
	}
}

// RecordRequest records an outbound request.
func (m *Metrics) RecordRequest(success bool) {
	m.requests.Add(1)
	if !success {
		m.failures.Add(1)
	}
}

// RecordUnauthorized records a protected-route 401.
func (m *Metrics) RecordUnauthorized() { m.unauthorized.Add(1) }

// RecordConversion records a classified conversion outcome.
func (m *Metrics) RecordConversion(tag string) {
	switch tag {
	case OutcomeSuccess:
		m.conversionSuccess.Add(1)
	case OutcomeQuotaExceeded:
		m.conversionQuota.Add(1)
	case OutcomeAnonymousLimit:
		m.conversionAnonymous.Add(1)
	default:
		m.conversionFailure.Add(1)
	}
}

// RecordReconcile records one finished reconciliation run.
func (m *Metrics) RecordReconcile(attempts int, confirmed bool) {
	m.reconcileRuns.Add(1)
	m.reconcileAttempts.Add(int64(attempts))
	if confirmed {
		m.reconcileConfirmed.Add(1)
	}
}

// StartedAt returns when the collector was created.
func (m *Metrics) StartedAt() time.Time { return m.startedAt }

// Snapshot returns all metrics in a structured format.
func (m *Metrics) Snapshot() Snapshot {
	uptime := time.Since(m.startedAt)
	return Snapshot{
		Uptime: formatDuration(uptime),
		Requests: RequestStats{
			Total:        m.requests.Load(),
			Failed:       m.failures.Load(),
			Unauthorized: m.unauthorized.Load(),
		},
		Conversions: ConversionStats{
			Success:        m.conversionSuccess.Load(),
			QuotaExceeded:  m.conversionQuota.Load(),
			AnonymousLimit: m.conversionAnonymous.Load(),
			Failure:        m.conversionFailure.Load(),
		},
		Reconcile: ReconcileStats{
			Runs:      m.reconcileRuns.Load(),
			Attempts:  m.reconcileAttempts.Load(),
			Confirmed: m.reconcileConfirmed.Load(),
		},
	}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime      string          `json:"uptime"`
	Requests    RequestStats    `json:"requests"`
	Conversions ConversionStats `json:"conversions"`
	Reconcile   ReconcileStats  `json:"reconcile"`
}

// RequestStats holds transport metrics.
type RequestStats struct {
	Total        int64 `json:"total"`
	Failed       int64 `json:"failed"`
	Unauthorized int64 `json:"unauthorized"`
}

// ConversionStats holds conversion outcome counts.
type ConversionStats struct {
	Success        int64 `json:"success"`
	QuotaExceeded  int64 `json:"quota_exceeded"`
	AnonymousLimit int64 `json:"anonymous_limit_reached"`
	Failure        int64 `json:"failure"`
}

// Total returns the number of classified conversions.
func (c ConversionStats) Total() int64 {
	return c.Success + c.QuotaExceeded + c.AnonymousLimit + c.Failure
}

// ReconcileStats holds poller metrics.
type ReconcileStats struct {
	Runs      int64 `json:"runs"`
	Attempts  int64 `json:"attempts"`
	Confirmed int64 `json:"confirmed"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
