package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autoengineer/internal/logging"
)

// AuditLogger fans audit events out to callbacks, an optional JSON-lines
// file and running metrics. Plug it in with sb.SetAuditCallback(l.Log).
type AuditLogger struct {
	mu        sync.RWMutex
	callbacks []func(AuditEvent)
	file      *os.File
	metrics   *Metrics
}

// NewAuditLogger creates an audit logger with empty metrics.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{metrics: NewMetrics()}
}

// AddCallback adds a callback function for audit events.
func (l *AuditLogger) AddCallback(callback func(AuditEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// EnableFileLogging appends every event to path as one JSON object per line.
func (l *AuditLogger) EnableFileLogging(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	return nil
}

// Close closes the audit file, if any.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Log records an event.
func (l *AuditLogger) Log(event AuditEvent) {
	l.metrics.Record(event)

	l.mu.RLock()
	callbacks := l.callbacks
	l.mu.RUnlock()

	for _, cb := range callbacks {
		cb(event)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logging.SandboxWarn("audit: cannot encode %s event: %v", event.Type, err)
		return
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		logging.SandboxWarn("audit: write to %s failed: %v", l.file.Name(), err)
	}
}

// Metrics returns the live metrics.
func (l *AuditLogger) Metrics() *Metrics {
	return l.metrics
}

// Metrics tracks aggregate execution statistics.
type Metrics struct {
	mu sync.Mutex

	total     int64
	succeeded int64
	nonZero   int64
	killed    int64
	errored   int64
	blocked   int64
	duration  time.Duration
	byBinary  map[string]int64
	lastEvent time.Time
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{byBinary: make(map[string]int64)}
}

// Record updates the counters for event.
func (m *Metrics) Record(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastEvent = event.Timestamp

	switch event.Type {
	case AuditEventStart:
		m.total++
		m.byBinary[event.Command.Binary]++

	case AuditEventComplete:
		if event.Result == nil {
			return
		}
		if event.Result.ExitCode == 0 {
			m.succeeded++
		} else {
			m.nonZero++
		}
		m.duration += event.Result.Duration

	case AuditEventKilled:
		m.killed++
		if event.Result != nil {
			m.duration += event.Result.Duration
		}

	case AuditEventError:
		m.errored++

	case AuditEventBlocked:
		m.blocked++
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Total         int64            `json:"total"`
	Succeeded     int64            `json:"succeeded"`
	NonZeroExits  int64            `json:"non_zero_exits"`
	Killed        int64            `json:"killed"`
	Errors        int64            `json:"errors"`
	Blocked       int64            `json:"blocked"`
	TotalDuration time.Duration    `json:"total_duration"`
	AvgDuration   time.Duration    `json:"avg_duration"`
	SuccessRate   float64          `json:"success_rate"`
	ByBinary      map[string]int64 `json:"by_binary"`
	LastEvent     time.Time        `json:"last_event"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byBinary := make(map[string]int64, len(m.byBinary))
	for k, v := range m.byBinary {
		byBinary[k] = v
	}

	snap := MetricsSnapshot{
		Total:         m.total,
		Succeeded:     m.succeeded,
		NonZeroExits:  m.nonZero,
		Killed:        m.killed,
		Errors:        m.errored,
		Blocked:       m.blocked,
		TotalDuration: m.duration,
		ByBinary:      byBinary,
		LastEvent:     m.lastEvent,
	}
	if finished := m.succeeded + m.nonZero + m.killed + m.errored; finished > 0 {
		snap.SuccessRate = float64(m.succeeded) / float64(finished)
		snap.AvgDuration = m.duration / time.Duration(finished)
	}
	return snap
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total, m.succeeded, m.nonZero = 0, 0, 0
	m.killed, m.errored, m.blocked = 0, 0, 0
	m.duration = 0
	m.byBinary = make(map[string]int64)
	m.lastEvent = time.Time{}
}
