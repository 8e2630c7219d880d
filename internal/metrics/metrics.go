// Package metrics provides performance monitoring and metrics collection for logspam.
//
// This package implements:
// - Operation timing (spam runs, rotations, script hooks)
// - Line counters per worker
// - Integration with structured logging
//
// Example usage:
//
//	timer := metrics.NewTimer("spam_run")
//	defer timer.Stop()
//
//	metrics.AddLines("1234", 100)
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor provides performance monitoring functionality
type Monitor struct {
	logger *slog.Logger
	mu     sync.RWMutex

	operations map[string]*OperationMetrics
	lines      map[string]int64
}

// OperationMetrics tracks metrics for specific operations
type OperationMetrics struct {
	Name            string        `json:"name"`
	Count           int64         `json:"count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastExecution   time.Time     `json:"last_execution"`
	Errors          int64         `json:"errors"`
	Successes       int64         `json:"successes"`
}

// NewMonitor creates a new performance monitor
func NewMonitor() *Monitor {
	return &Monitor{
		operations: make(map[string]*OperationMetrics),
		lines:      make(map[string]int64),
	}
}

// SetLogger sets the logger for metrics output
func (m *Monitor) SetLogger(logger *slog.Logger) {
	m.logger = logger.With(slog.String("component", "metrics"))
}

// TrackOperation tracks the execution of an operation
func (m *Monitor) TrackOperation(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	m.recordOperation(operation, duration, err == nil)

	if m.logger != nil {
		level := slog.LevelDebug
		status := "success"
		if err != nil {
			level = slog.LevelError
			status = "error"
		}

		m.logger.LogAttrs(ctx, level, "Operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.String("status", status),
		)
	}

	return err
}

// recordOperation records operation metrics
func (m *Monitor) recordOperation(name string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, exists := m.operations[name]
	if !exists {
		metrics = &OperationMetrics{
			Name:        name,
			MinDuration: duration,
			MaxDuration: duration,
		}
		m.operations[name] = metrics
	}

	metrics.Count++
	metrics.TotalDuration += duration
	metrics.LastExecution = time.Now()

	if duration < metrics.MinDuration {
		metrics.MinDuration = duration
	}
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}

	metrics.AverageDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)

	if success {
		metrics.Successes++
	} else {
		metrics.Errors++
	}
}

// LogTiming logs timing information for an operation
func (m *Monitor) LogTiming(operation string, start time.Time, attrs ...slog.Attr) {
	duration := time.Since(start)
	m.recordOperation(operation, duration, true)

	if m.logger != nil {
		allAttrs := []slog.Attr{
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.String("metric_type", "timing"),
		}
		allAttrs = append(allAttrs, attrs...)

		m.logger.LogAttrs(context.Background(), slog.LevelDebug,
			"Operation timing", allAttrs...)
	}
}

// AddLines records lines emitted by a worker
func (m *Monitor) AddLines(worker string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines[worker] += n
}

// TotalLines returns the total number of lines recorded across all workers
func (m *Monitor) TotalLines() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, n := range m.lines {
		total += n
	}
	return total
}

// LinesByWorker returns a copy of the per-worker line counters
func (m *Monitor) LinesByWorker() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int64, len(m.lines))
	for worker, n := range m.lines {
		result[worker] = n
	}
	return result
}

// GetOperationMetrics returns metrics for a specific operation
func (m *Monitor) GetOperationMetrics(operation string) *OperationMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, exists := m.operations[operation]; exists {
		// Return a copy to avoid race conditions
		copy := *metrics
		return &copy
	}
	return nil
}

// LogMetricsSummary logs a summary of all collected metrics
func (m *Monitor) LogMetricsSummary(ctx context.Context) {
	if m.logger == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, metrics := range m.operations {
		successRate := float64(0)
		if metrics.Count > 0 {
			successRate = float64(metrics.Successes) / float64(metrics.Count) * 100
		}

		m.logger.InfoContext(ctx, "Operation metrics",
			slog.String("operation", name),
			slog.Int64("count", metrics.Count),
			slog.Duration("avg_duration", metrics.AverageDuration),
			slog.Duration("min_duration", metrics.MinDuration),
			slog.Duration("max_duration", metrics.MaxDuration),
			slog.Float64("success_rate", successRate),
		)
	}

	var total int64
	for _, n := range m.lines {
		total += n
	}
	m.logger.InfoContext(ctx, "Line metrics",
		slog.Int("workers", len(m.lines)),
		slog.Int64("total_lines", total),
	)
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.operations = make(map[string]*OperationMetrics)
	m.lines = make(map[string]int64)
}

// Global monitor instance
var defaultMonitor = NewMonitor()

// SetDefaultMonitor sets the global default monitor
func SetDefaultMonitor(monitor *Monitor) {
	defaultMonitor = monitor
}

// Default returns the default monitor instance
func Default() *Monitor {
	return defaultMonitor
}

// Package-level convenience functions

// TrackOperation tracks an operation using the default monitor
func TrackOperation(ctx context.Context, operation string, fn func() error) error {
	return defaultMonitor.TrackOperation(ctx, operation, fn)
}

// LogTiming logs timing using the default monitor
func LogTiming(operation string, start time.Time, attrs ...slog.Attr) {
	defaultMonitor.LogTiming(operation, start, attrs...)
}

// AddLines records emitted lines using the default monitor
func AddLines(worker string, n int64) {
	defaultMonitor.AddLines(worker, n)
}

// Timer provides convenient timing functionality
type Timer struct {
	start     time.Time
	operation string
	monitor   *Monitor
}

// NewTimer creates a new timer for an operation
func NewTimer(operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		operation: operation,
		monitor:   defaultMonitor,
	}
}

// NewTimerWithMonitor creates a new timer with a specific monitor
func NewTimerWithMonitor(operation string, monitor *Monitor) *Timer {
	return &Timer{
		start:     time.Now(),
		operation: operation,
		monitor:   monitor,
	}
}

// Stop stops the timer and logs the timing
func (t *Timer) Stop(attrs ...slog.Attr) {
	t.monitor.LogTiming(t.operation, t.start, attrs...)
}
