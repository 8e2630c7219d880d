package buffer

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

const (
	// MaxBufferSize is the default maximum size of the ring buffer in bytes (5MB)
	MaxBufferSize = 5 * 1024 * 1024

	// MaxBufferAge is the default maximum age of log entries in the buffer (5 minutes)
	MaxBufferAge = 5 * time.Minute

	// MaxLineSize is the default maximum size of a single log line (64KB)
	MaxLineSize = 64 * 1024

	// CleanupInterval is how often the background cleanup runs by default (30 seconds)
	CleanupInterval = 30 * time.Second
)

// Limits bounds one ring buffer instance. Zero fields fall back to the
// package defaults, so a partially filled Limits is valid.
type Limits struct {
	MaxSize         int           // Total buffer size in bytes
	MaxLineSize     int           // Per-line size in bytes, longer lines are truncated
	MaxAge          time.Duration // Entries older than this are swept
	CleanupInterval time.Duration // How often the age sweep runs
}

// DefaultLimits returns the package default limits
func DefaultLimits() Limits {
	return Limits{
		MaxSize:         MaxBufferSize,
		MaxLineSize:     MaxLineSize,
		MaxAge:          MaxBufferAge,
		CleanupInterval: CleanupInterval,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxSize <= 0 {
		l.MaxSize = d.MaxSize
	}
	if l.MaxLineSize <= 0 {
		l.MaxLineSize = d.MaxLineSize
	}
	if l.MaxAge <= 0 {
		l.MaxAge = d.MaxAge
	}
	if l.CleanupInterval <= 0 {
		l.CleanupInterval = d.CleanupInterval
	}
	return l
}

// StreamType identifies which output stream a line was captured from
type StreamType string

const (
	StreamStdout StreamType = "stdout"
	StreamStderr StreamType = "stderr"
)

// LogEntry represents a captured log line in the ring buffer
type LogEntry struct {
	Worker    string
	Content   string
	Timestamp time.Time
	Stream    StreamType
	PID       int
}

// NewLogEntry creates a new LogEntry for a captured line, truncating content
// that exceeds MaxLineSize
func NewLogEntry(worker, content string, stream StreamType, pid int) *LogEntry {
	if len(content) > MaxLineSize {
		content = content[:MaxLineSize]
	}

	return &LogEntry{
		Worker:    worker,
		Content:   content,
		Timestamp: time.Now(),
		Stream:    stream,
		PID:       pid,
	}
}

// Size returns the approximate size of the log entry in bytes
func (e *LogEntry) Size() int {
	return len(e.Worker) + len(e.Content) + len(string(e.Stream)) + 8 + 4 // +8 for timestamp, +4 for PID
}

// Matches checks if the log entry matches the given filters
func (e *LogEntry) Matches(worker string, stream StreamType, pattern *regexp.Regexp) bool {
	if worker != "" && e.Worker != worker {
		return false
	}

	if stream != "" && stream != "both" && e.Stream != stream {
		return false
	}

	if pattern != nil && !pattern.MatchString(e.Content) {
		return false
	}

	return true
}

// RingBuffer is a thread-safe ring buffer for log entries with size and time limits
type RingBuffer struct {
	mutex     sync.RWMutex
	entries   []*LogEntry
	head      int // Points to the next position to write
	tail      int // Points to the oldest entry
	size      int // Number of entries in the buffer
	capacity  int // Maximum number of entries
	totalSize int // Total size in bytes
	limits    Limits
	ctx       context.Context
	cancel    context.CancelFunc
	cleanupWg sync.WaitGroup
}

// NewRingBuffer creates a new ring buffer with the specified capacity and
// default limits
func NewRingBuffer(capacity int) *RingBuffer {
	return NewRingBufferWithLimits(capacity, DefaultLimits())
}

// NewRingBufferWithLimits creates a new ring buffer with the specified
// capacity and limits. Zero limit fields fall back to the package defaults.
func NewRingBufferWithLimits(capacity int, limits Limits) *RingBuffer {
	ctx, cancel := context.WithCancel(context.Background())

	rb := &RingBuffer{
		entries:  make([]*LogEntry, capacity),
		capacity: capacity,
		limits:   limits.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
	}

	// Start background cleanup goroutine
	rb.cleanupWg.Add(1)
	go rb.backgroundCleanup()

	return rb
}

// NewDefaultRingBuffer creates a new ring buffer with default capacity
func NewDefaultRingBuffer() *RingBuffer {
	// 10000 entries comfortably covers a tail window for any sane run
	return NewRingBuffer(10000)
}

// Add adds a new log entry to the ring buffer
func (rb *RingBuffer) Add(entry *LogEntry) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if len(entry.Content) > rb.limits.MaxLineSize {
		entry.Content = entry.Content[:rb.limits.MaxLineSize]
	}
	rb.addUnsafe(entry)

	// Check if we need to evict entries due to size limit
	rb.evictBySizeUnsafe()
}

// AddLine adds a captured line for a worker
func (rb *RingBuffer) AddLine(worker, content string, stream StreamType, pid int) {
	rb.Add(NewLogEntry(worker, content, stream, pid))
}

// addUnsafe adds an entry without locking (internal use)
func (rb *RingBuffer) addUnsafe(entry *LogEntry) {
	// When full, evict the oldest entry before overwriting its slot so its
	// size is the one subtracted, not the new entry's.
	if rb.size == rb.capacity {
		if oldEntry := rb.entries[rb.tail]; oldEntry != nil {
			rb.totalSize -= oldEntry.Size()
		}
		rb.tail = (rb.tail + 1) % rb.capacity
	} else {
		rb.size++
	}

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.capacity
	rb.totalSize += entry.Size()
}

// evictBySizeUnsafe evicts entries if the buffer exceeds the size limit
func (rb *RingBuffer) evictBySizeUnsafe() {
	for rb.totalSize > rb.limits.MaxSize && rb.size > 0 {
		oldEntry := rb.entries[rb.tail]
		if oldEntry != nil {
			rb.totalSize -= oldEntry.Size()
		}
		rb.entries[rb.tail] = nil
		rb.tail = (rb.tail + 1) % rb.capacity
		rb.size--
	}
}

// evictByTimeUnsafe evicts entries that are older than the buffer's max age
func (rb *RingBuffer) evictByTimeUnsafe() {
	cutoff := time.Now().Add(-rb.limits.MaxAge)

	for rb.size > 0 {
		entry := rb.entries[rb.tail]
		if entry == nil || entry.Timestamp.After(cutoff) {
			break
		}

		rb.totalSize -= entry.Size()
		rb.entries[rb.tail] = nil
		rb.tail = (rb.tail + 1) % rb.capacity
		rb.size--
	}
}

// backgroundCleanup runs time-based eviction in the background
func (rb *RingBuffer) backgroundCleanup() {
	defer rb.cleanupWg.Done()

	ticker := time.NewTicker(rb.limits.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			rb.mutex.Lock()
			rb.evictByTimeUnsafe()
			rb.mutex.Unlock()
		}
	}
}

// GetOptions represents options for retrieving log entries
type GetOptions struct {
	Lines   int        // Maximum number of lines to return, newest kept (0 = no limit)
	Since   time.Time  // Only return entries at or after this timestamp
	Worker  string     // Filter by worker identifier ("" = all workers)
	Stream  StreamType // Filter by stream ("stdout", "stderr", "both", or "")
	Pattern string     // Regex pattern to match against line content
}

// Get retrieves log entries with optional filters
func (rb *RingBuffer) Get(opts GetOptions) []*LogEntry {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	var result []*LogEntry

	if rb.size == 0 {
		return result
	}

	// Compile regex pattern if provided
	var pattern *regexp.Regexp
	if opts.Pattern != "" {
		var err error
		pattern, err = regexp.Compile(opts.Pattern)
		if err != nil {
			// If pattern is invalid, return empty result
			return result
		}
	}

	for _, entry := range rb.getAllEntriesUnsafe() {
		if !opts.Since.IsZero() && entry.Timestamp.Before(opts.Since) {
			continue
		}
		if entry.Matches(opts.Worker, opts.Stream, pattern) {
			result = append(result, entry)
		}
	}

	// Apply line limit (take the last N entries)
	if opts.Lines > 0 && len(result) > opts.Lines {
		result = result[len(result)-opts.Lines:]
	}

	return result
}

// getAllEntriesUnsafe returns all entries in chronological order without locking
func (rb *RingBuffer) getAllEntriesUnsafe() []*LogEntry {
	if rb.size == 0 {
		return nil
	}

	result := make([]*LogEntry, 0, rb.size)

	// Start from tail (oldest) and go to head (newest)
	for i := 0; i < rb.size; i++ {
		idx := (rb.tail + i) % rb.capacity
		if rb.entries[idx] != nil {
			result = append(result, rb.entries[idx])
		}
	}

	return result
}

// CountByWorker returns the number of buffered lines per worker identifier
func (rb *RingBuffer) CountByWorker() map[string]int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	counts := make(map[string]int)
	for _, entry := range rb.getAllEntriesUnsafe() {
		counts[entry.Worker]++
	}
	return counts
}

// Search searches for log entries matching a regex pattern
func (rb *RingBuffer) Search(pattern string) ([]*LogEntry, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	var result []*LogEntry

	for _, entry := range rb.getAllEntriesUnsafe() {
		if regex.MatchString(entry.Content) {
			result = append(result, entry)
		}
	}

	return result, nil
}

// Stats represents statistics about the ring buffer
type Stats struct {
	EntryCount      int        // Number of entries in the buffer
	TotalSizeBytes  int        // Total size of all entries in bytes
	Capacity        int        // Maximum number of entries the buffer can hold
	OldestTimestamp *time.Time // Timestamp of the oldest entry (nil if empty)
	NewestTimestamp *time.Time // Timestamp of the newest entry (nil if empty)
}

// GetStats returns statistics about the ring buffer
func (rb *RingBuffer) GetStats() Stats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	var oldestTimestamp, newestTimestamp *time.Time

	if rb.size > 0 {
		entries := rb.getAllEntriesUnsafe()
		if len(entries) > 0 {
			oldestTimestamp = &entries[0].Timestamp
			newestTimestamp = &entries[len(entries)-1].Timestamp
		}
	}

	return Stats{
		EntryCount:      rb.size,
		TotalSizeBytes:  rb.totalSize,
		Capacity:        rb.capacity,
		OldestTimestamp: oldestTimestamp,
		NewestTimestamp: newestTimestamp,
	}
}

// String returns a human-readable string representation of the stats
func (s Stats) String() string {
	if s.EntryCount == 0 {
		return "Ring buffer is empty"
	}

	return fmt.Sprintf("Ring buffer: %d/%d entries, %d bytes, oldest: %v, newest: %v",
		s.EntryCount, s.Capacity, s.TotalSizeBytes,
		s.OldestTimestamp, s.NewestTimestamp)
}

// Clear removes all entries from the ring buffer
func (rb *RingBuffer) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	for i := 0; i < rb.capacity; i++ {
		rb.entries[i] = nil
	}

	rb.head = 0
	rb.tail = 0
	rb.size = 0
	rb.totalSize = 0
}

// Close stops the background cleanup goroutine and cleans up resources
func (rb *RingBuffer) Close() {
	rb.cancel()
	rb.cleanupWg.Wait()
}
