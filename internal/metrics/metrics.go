// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of a chat client process.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics across every connection attempt.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	attempts         atomic.Int64
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	reconnects       atomic.Int64
	linesReceived    atomic.Int64
	messagesSent     atomic.Int64
	pingsSent        atomic.Int64
	livenessTimeouts atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	errorsTotal      atomic.Int64

	mu              sync.RWMutex
	startTime       time.Time
	lastHealthCheck time.Time
	lastError       time.Time
	lastErrorMsg    string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectAttempt records one dial of the chat server.
func (c *Collector) ConnectAttempt() {
	if c == nil {
		return
	}
	c.attempts.Add(1)
}

// Attempts returns how many times the server has been dialled.
func (c *Collector) Attempts() int64 {
	if c == nil {
		return 0
	}
	return c.attempts.Load()
}

// SessionOpened increments both the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of sessions currently open.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime count of established sessions.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// Reconnect records the supervisor looping back after a failure.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the total reconnect count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// ── Traffic metrics ──────────────────────────────────────────────────

// LineReceived records one decoded inbound line of n bytes.
func (c *Collector) LineReceived(n int) {
	if c == nil {
		return
	}
	c.linesReceived.Add(1)
	c.bytesIn.Add(int64(n))
}

// MessageSent records one outbound chat message.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesSent.Add(1)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int) {
	if c == nil {
		return
	}
	c.bytesOut.Add(int64(n))
}

// LinesReceived returns the number of inbound lines.
func (c *Collector) LinesReceived() int64 {
	if c == nil {
		return 0
	}
	return c.linesReceived.Load()
}

// MessagesSent returns the number of outbound chat messages.
func (c *Collector) MessagesSent() int64 {
	if c == nil {
		return 0
	}
	return c.messagesSent.Load()
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

// ── Liveness ─────────────────────────────────────────────────────────

// PingSent records one active-probe ping.
func (c *Collector) PingSent() {
	if c == nil {
		return
	}
	c.pingsSent.Add(1)
}

// PingsSent returns the number of pings written.
func (c *Collector) PingsSent() int64 {
	if c == nil {
		return 0
	}
	return c.pingsSent.Load()
}

// LivenessTimeout records a probe giving up on the connection.
func (c *Collector) LivenessTimeout() {
	if c == nil {
		return
	}
	c.livenessTimeouts.Add(1)
}

// LivenessTimeouts returns how many probe timeouts occurred.
func (c *Collector) LivenessTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.livenessTimeouts.Load()
}

// RecordHealthCheck updates the last successful ping reply timestamp.
func (c *Collector) RecordHealthCheck() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.mu.Unlock()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
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

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	Attempts         int64  `json:"connect_attempts"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	Reconnects       int64  `json:"reconnects"`
	LinesReceived    int64  `json:"lines_received"`
	MessagesSent     int64  `json:"messages_sent"`
	PingsSent        int64  `json:"pings_sent"`
	LivenessTimeouts int64  `json:"liveness_timeouts"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastHealthCheck  string `json:"last_health_check,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		Attempts:         c.attempts.Load(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		Reconnects:       c.reconnects.Load(),
		LinesReceived:    c.linesReceived.Load(),
		MessagesSent:     c.messagesSent.Load(),
		PingsSent:        c.pingsSent.Load(),
		LivenessTimeouts: c.livenessTimeouts.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
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
