package buffer

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewRingBuffer(t *testing.T) {
	rb := NewRingBuffer(100)
	defer rb.Close()

	if rb.capacity != 100 {
		t.Errorf("Expected capacity 100, got %d", rb.capacity)
	}

	stats := rb.GetStats()
	if stats.EntryCount != 0 {
		t.Errorf("Expected empty buffer, got %d entries", stats.EntryCount)
	}
}

func TestNewDefaultRingBuffer(t *testing.T) {
	rb := NewDefaultRingBuffer()
	defer rb.Close()

	if rb.capacity != 10000 {
		t.Errorf("Expected default capacity 10000, got %d", rb.capacity)
	}
}

func TestNewLogEntry_ContentTruncation(t *testing.T) {
	longContent := strings.Repeat("a", MaxLineSize+1000)

	entry := NewLogEntry("1234", longContent, StreamStdout, 1234)

	if len(entry.Content) != MaxLineSize {
		t.Errorf("Expected content length %d, got %d", MaxLineSize, len(entry.Content))
	}
}

func TestLogEntry_Size(t *testing.T) {
	entry := &LogEntry{
		Worker:    "test",
		Content:   "hello world",
		Stream:    StreamStdout,
		PID:       1234,
		Timestamp: time.Now(),
	}

	size := entry.Size()
	expectedSize := len("test") + len("hello world") + len("stdout") + 8 + 4

	if size != expectedSize {
		t.Errorf("Expected size %d, got %d", expectedSize, size)
	}
}

func TestAdd_WrapsAroundCapacity(t *testing.T) {
	rb := NewRingBuffer(3)
	defer rb.Close()

	for i := 0; i < 5; i++ {
		rb.AddLine("w1", fmt.Sprintf("line-%d", i), StreamStdout, 100)
	}

	entries := rb.Get(GetOptions{})
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries after wrap, got %d", len(entries))
	}

	// Oldest two should have been evicted
	if entries[0].Content != "line-2" {
		t.Errorf("Expected oldest entry line-2, got %s", entries[0].Content)
	}
	if entries[2].Content != "line-4" {
		t.Errorf("Expected newest entry line-4, got %s", entries[2].Content)
	}
}

func TestAdd_TotalSizeTracksEvictions(t *testing.T) {
	rb := NewRingBuffer(2)
	defer rb.Close()

	// Entries of different lengths, enough to wrap twice
	rb.AddLine("w", "short", StreamStdout, 1)
	rb.AddLine("w", "a much longer line than the first", StreamStdout, 1)
	rb.AddLine("w", "mid-sized line", StreamStdout, 1)
	rb.AddLine("w", "x", StreamStdout, 1)

	var want int
	for _, e := range rb.Get(GetOptions{}) {
		want += e.Size()
	}

	stats := rb.GetStats()
	if stats.TotalSizeBytes != want {
		t.Errorf("Expected total size %d (sum of live entries), got %d", want, stats.TotalSizeBytes)
	}
}

func TestNewRingBufferWithLimits(t *testing.T) {
	limits := Limits{MaxLineSize: 8}
	rb := NewRingBufferWithLimits(10, limits)
	defer rb.Close()

	// Zero fields fall back to the defaults
	if rb.limits.MaxSize != MaxBufferSize {
		t.Errorf("Expected default max size %d, got %d", MaxBufferSize, rb.limits.MaxSize)
	}
	if rb.limits.MaxAge != MaxBufferAge {
		t.Errorf("Expected default max age %v, got %v", MaxBufferAge, rb.limits.MaxAge)
	}

	rb.AddLine("w", "0123456789", StreamStdout, 1)
	entries := rb.Get(GetOptions{})
	if len(entries) != 1 || entries[0].Content != "01234567" {
		t.Errorf("Expected content truncated to 8 bytes, got %+v", entries)
	}
}

func TestNewRingBufferWithLimits_SizeEviction(t *testing.T) {
	entrySize := (&LogEntry{Worker: "w", Content: "0123456789", Stream: StreamStdout}).Size()

	// Room for two entries but not three
	rb := NewRingBufferWithLimits(10, Limits{MaxSize: 2 * entrySize})
	defer rb.Close()

	for i := 0; i < 3; i++ {
		rb.AddLine("w", "0123456789", StreamStdout, 1)
	}

	stats := rb.GetStats()
	if stats.EntryCount != 2 {
		t.Errorf("Expected size limit to keep 2 entries, got %d", stats.EntryCount)
	}
	if stats.TotalSizeBytes != 2*entrySize {
		t.Errorf("Expected total size %d, got %d", 2*entrySize, stats.TotalSizeBytes)
	}
}

func TestGet_WorkerFilter(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	rb.AddLine("1001", "from first", StreamStdout, 1001)
	rb.AddLine("1002", "from second", StreamStdout, 1002)
	rb.AddLine("1001", "first again", StreamStdout, 1001)

	entries := rb.Get(GetOptions{Worker: "1001"})
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries for worker 1001, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Worker != "1001" {
			t.Errorf("Unexpected worker %s", e.Worker)
		}
	}
}

func TestGet_StreamFilter(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	rb.AddLine("w", "out line", StreamStdout, 1)
	rb.AddLine("w", "err line", StreamStderr, 1)

	if got := rb.Get(GetOptions{Stream: StreamStderr}); len(got) != 1 || got[0].Content != "err line" {
		t.Errorf("stderr filter failed: %+v", got)
	}
	if got := rb.Get(GetOptions{Stream: "both"}); len(got) != 2 {
		t.Errorf("both filter should return everything, got %d", len(got))
	}
}

func TestGet_PatternFilter(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	rb.AddLine("w", "1234: A1B2C3", StreamStdout, 1234)
	rb.AddLine("w", "not a payload", StreamStdout, 1234)

	entries := rb.Get(GetOptions{Pattern: `^\d+: [A-Z0-9]+$`})
	if len(entries) != 1 {
		t.Fatalf("Expected 1 matching entry, got %d", len(entries))
	}
	if entries[0].Content != "1234: A1B2C3" {
		t.Errorf("Unexpected content: %s", entries[0].Content)
	}
}

func TestGet_InvalidPattern(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	rb.AddLine("w", "something", StreamStdout, 1)

	if got := rb.Get(GetOptions{Pattern: "("}); len(got) != 0 {
		t.Errorf("Invalid pattern should return no entries, got %d", len(got))
	}
}

func TestGet_LineLimit(t *testing.T) {
	rb := NewRingBuffer(100)
	defer rb.Close()

	for i := 0; i < 10; i++ {
		rb.AddLine("w", fmt.Sprintf("line-%d", i), StreamStdout, 1)
	}

	entries := rb.Get(GetOptions{Lines: 3})
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Content != "line-7" || entries[2].Content != "line-9" {
		t.Errorf("Line limit should keep the newest entries, got %s..%s",
			entries[0].Content, entries[2].Content)
	}
}

func TestCountByWorker(t *testing.T) {
	rb := NewRingBuffer(100)
	defer rb.Close()

	for i := 0; i < 3; i++ {
		rb.AddLine("1001", "x", StreamStdout, 1001)
	}
	for i := 0; i < 2; i++ {
		rb.AddLine("1002", "x", StreamStdout, 1002)
	}

	counts := rb.CountByWorker()
	if counts["1001"] != 3 || counts["1002"] != 2 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestSearch(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	rb.AddLine("w", "ERROR: broken pipe", StreamStderr, 1)
	rb.AddLine("w", "all fine", StreamStdout, 1)

	matches, err := rb.Search("ERROR")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("Expected 1 match, got %d", len(matches))
	}

	if _, err := rb.Search("("); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestClear(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	rb.AddLine("w", "line", StreamStdout, 1)
	rb.Clear()

	stats := rb.GetStats()
	if stats.EntryCount != 0 || stats.TotalSizeBytes != 0 {
		t.Errorf("Expected empty buffer after Clear, got %+v", stats)
	}
}

func TestStats_String(t *testing.T) {
	rb := NewRingBuffer(10)
	defer rb.Close()

	if rb.GetStats().String() != "Ring buffer is empty" {
		t.Error("Expected empty buffer message")
	}

	rb.AddLine("w", "line", StreamStdout, 1)
	if !strings.Contains(rb.GetStats().String(), "1/10 entries") {
		t.Errorf("Unexpected stats string: %s", rb.GetStats().String())
	}
}
