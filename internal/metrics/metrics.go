// Package metrics tracks runtime statistics of an agent session: binds,
// forwarded connections and bytes moved.
//
// Counters are kept twice: in lock-free atomics for cheap snapshots and
// in a private Prometheus registry for scraping.  All methods are safe
// for concurrent use.  A nil *Collector is a valid no-op receiver, so
// callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "edgetun"

// Collector tracks runtime metrics for an agent session.
// A nil Collector is safe to use — all methods become no-ops.
type Collector struct {
	bindsTotal        atomic.Int64
	bindFailures      atomic.Int64
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	sessionReconnects atomic.Int64
	errorsTotal       atomic.Int64

	registry     *prometheus.Registry
	binds        *prometheus.CounterVec
	conns        *prometheus.CounterVec
	connsActive  prometheus.Gauge
	bytes        *prometheus.CounterVec
	reconnects   prometheus.Counter
	errorCounter prometheus.Counter

	mu              sync.RWMutex
	startTime       time.Time
	lastHealthCheck time.Time
	lastError       time.Time
	lastErrorMsg    string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	c := &Collector{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		binds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "binds_total",
			Help:      "Tunnel bind attempts by protocol and result.",
		}, []string{"proto", "result"}),
		conns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Connections forwarded to upstream services, by protocol.",
		}, []string{"proto"}),
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Connections currently being forwarded.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_total",
			Help:      "Bytes moved through forwarded connections.",
		}, []string{"direction"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_reconnects_total",
			Help:      "Times the session had to redial the edge.",
		}),
		errorCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Errors recorded by the agent.",
		}),
	}
	c.registry.MustRegister(c.binds, c.conns, c.connsActive, c.bytes, c.reconnects, c.errorCounter)
	return c
}

// Registry returns the Prometheus registry holding this collector's
// series, or nil for a nil collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ── Bind metrics ─────────────────────────────────────────────────────

// BindSucceeded records a tunnel the edge accepted.
func (c *Collector) BindSucceeded(proto string) {
	if c == nil {
		return
	}
	c.bindsTotal.Add(1)
	c.binds.WithLabelValues(protoLabel(proto), "ok").Inc()
}

// BindFailed records a refused or failed bind; result is the failure
// kind (transport, rejected, unauthorized).
func (c *Collector) BindFailed(proto, result string) {
	if c == nil {
		return
	}
	c.bindsTotal.Add(1)
	c.bindFailures.Add(1)
	c.binds.WithLabelValues(protoLabel(proto), result).Inc()
}

// BindsTotal returns the number of bind attempts.
func (c *Collector) BindsTotal() int64 {
	if c == nil {
		return 0
	}
	return c.bindsTotal.Load()
}

// BindFailures returns the number of failed bind attempts.
func (c *Collector) BindFailures() int64 {
	if c == nil {
		return 0
	}
	return c.bindFailures.Load()
}

func protoLabel(proto string) string {
	if proto == "" {
		return "labeled"
	}
	return proto
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened(proto string) {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
	c.connsActive.Inc()
	c.conns.WithLabelValues(protoLabel(proto)).Inc()
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
	c.connsActive.Dec()
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes that arrived from the edge.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
	c.bytes.WithLabelValues("in").Add(float64(n))
}

// BytesSent records n bytes sent back to the edge.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
	c.bytes.WithLabelValues("out").Add(float64(n))
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionReconnect records a redial of the edge after the first attempt
// failed.
func (c *Collector) SessionReconnect() {
	if c == nil {
		return
	}
	c.sessionReconnects.Add(1)
	c.reconnects.Inc()
}

// SessionReconnects returns the total redial count.
func (c *Collector) SessionReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.sessionReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.errorCounter.Inc()
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Health ───────────────────────────────────────────────────────────

// RecordHealthCheck updates the last successful keepalive timestamp.
func (c *Collector) RecordHealthCheck() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	BindsTotal        int64  `json:"binds_total"`
	BindFailures      int64  `json:"bind_failures"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	SessionReconnects int64  `json:"session_reconnects"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastHealthCheck   string `json:"last_health_check,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		BindsTotal:        c.bindsTotal.Load(),
		BindFailures:      c.bindFailures.Load(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		SessionReconnects: c.sessionReconnects.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastHealthCheck.IsZero() {
		s.LastHealthCheck = c.lastHealthCheck.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
