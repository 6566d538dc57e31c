// Package metrics exposes Prometheus collectors for the scheduler, the
// approval gate and the execution gateway.
//
// Every Record* method is safe on a nil *Collector so components run
// unchanged when metrics are disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tradepulse"

// Collector holds all tradepulse metrics
type Collector struct {
	scheduleFires   *prometheus.CounterVec
	overlapSkips    prometheus.Counter
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	approvals       *prometheus.CounterVec
	pendingApproval prometheus.Gauge
	gatewayRequests *prometheus.CounterVec
	gatewayActions  *prometheus.CounterVec
	killSwitch      prometheus.Gauge
}

// NewCollector creates and registers all collectors on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		scheduleFires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_fires_total",
			Help:      "Scheduled instants that started a job run",
		}, []string{"job_type"}),
		overlapSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_overlap_skips_total",
			Help:      "Due instants skipped because the schedule already had a running execution",
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Finished job runs by outcome",
		}, []string{"job_type", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of job runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		}, []string{"job_type"}),
		approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval requests by lifecycle status transition",
		}, []string{"status"}),
		pendingApproval: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "approvals_pending",
			Help:      "Approval requests currently awaiting a decision",
		}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Execute calls by result (success, partial, failed, duplicate, halted, in_flight, invalid, error)",
		}, []string{"result"}),
		gatewayActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_actions_total",
			Help:      "Individual actions dispatched by status and mode",
		}, []string{"status", "mode"}),
		killSwitch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "killswitch_enabled",
			Help:      "1 while live trading is halted",
		}),
	}
}

// RecordScheduleFire counts a due instant that started a run
func (c *Collector) RecordScheduleFire(jobType string) {
	if c == nil {
		return
	}
	c.scheduleFires.WithLabelValues(jobType).Inc()
}

// RecordOverlapSkip counts a due instant skipped by the overlap guard
func (c *Collector) RecordOverlapSkip() {
	if c == nil {
		return
	}
	c.overlapSkips.Inc()
}

// RecordJobRun records a finished run
func (c *Collector) RecordJobRun(jobType, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(jobType, status).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordApproval counts an approval lifecycle transition (pending, approved, rejected, expired)
func (c *Collector) RecordApproval(status string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.approvals.WithLabelValues(status).Add(float64(n))
}

// SetPendingApprovals sets the pending gauge
func (c *Collector) SetPendingApprovals(n int) {
	if c == nil {
		return
	}
	c.pendingApproval.Set(float64(n))
}

// RecordGatewayRequest counts an execute call by result
func (c *Collector) RecordGatewayRequest(result string) {
	if c == nil {
		return
	}
	c.gatewayRequests.WithLabelValues(result).Inc()
}

// RecordGatewayAction counts one dispatched action
func (c *Collector) RecordGatewayAction(status string, dryRun bool) {
	if c == nil {
		return
	}
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}
	c.gatewayActions.WithLabelValues(status, mode).Inc()
}

// SetKillSwitch mirrors the kill-switch state
func (c *Collector) SetKillSwitch(enabled bool) {
	if c == nil {
		return
	}
	if enabled {
		c.killSwitch.Set(1)
		return
	}
	c.killSwitch.Set(0)
}
