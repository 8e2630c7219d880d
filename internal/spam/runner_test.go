package spam

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logspam/logspam/internal/buffer"
	"github.com/logspam/logspam/internal/config"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/metrics"
)

var linePattern = regexp.MustCompile(`^[0-9.]+: [A-Z0-9]+$`)

func newTestRunner(t *testing.T, opts Options) (*Runner, *buffer.RingBuffer) {
	t.Helper()

	logger, err := logging.NewWriterLogger(
		config.LoggingConfig{Level: "error", Format: "text"}, &bytes.Buffer{})
	require.NoError(t, err)

	capture := buffer.NewRingBuffer(10000)
	t.Cleanup(capture.Close)

	r := NewRunner(opts, logger, capture)
	r.SetMonitor(metrics.NewMonitor())
	return r, capture
}

func TestRun_TotalLines(t *testing.T) {
	r, capture := newTestRunner(t, Options{Workers: 4, LinesPerWorker: 25, LineLength: 100})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), summary.TotalLines)
	assert.Len(t, summary.LinesByWorker, 4)
	assert.Equal(t, 100, capture.GetStats().EntryCount)
}

func TestRun_TwoWorkersThreeLines(t *testing.T) {
	r, capture := newTestRunner(t, Options{Workers: 2, LinesPerWorker: 3, LineLength: 100})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	// Exactly 6 lines, 3 per worker, 2 distinct identifiers
	assert.Equal(t, int64(6), summary.TotalLines)
	require.Len(t, summary.LinesByWorker, 2)
	for worker, n := range summary.LinesByWorker {
		assert.Equal(t, int64(3), n, "worker %s", worker)
	}

	counts := capture.CountByWorker()
	require.Len(t, counts, 2)
	for worker, n := range counts {
		assert.Equal(t, 3, n, "worker %s", worker)
	}

	// Every line carries a 100-char alphanumeric payload after "<id>: "
	for _, entry := range capture.Get(buffer.GetOptions{}) {
		require.True(t, linePattern.MatchString(entry.Content), "line %q", entry.Content)
		payload := entry.Content[len(entry.Worker)+2:]
		assert.Len(t, payload, 100)
	}
}

func TestRun_ZeroWorkers(t *testing.T) {
	r, capture := newTestRunner(t, Options{Workers: 0, LinesPerWorker: 10})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.TotalLines)
	assert.Empty(t, summary.LinesByWorker)
	assert.Equal(t, 0, capture.GetStats().EntryCount)
}

func TestRun_ZeroLines(t *testing.T) {
	r, capture := newTestRunner(t, Options{Workers: 3, LinesPerWorker: 0})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.TotalLines)
	assert.Len(t, summary.LinesByWorker, 3)
	assert.Equal(t, 0, capture.GetStats().EntryCount)
}

func TestRun_NegativeCounts(t *testing.T) {
	r, _ := newTestRunner(t, Options{Workers: -1, LinesPerWorker: 1})
	_, err := r.Run(context.Background())
	assert.Error(t, err)

	r, _ = newTestRunner(t, Options{Workers: 1, LinesPerWorker: -1})
	_, err = r.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_DistinctWorkerIdentifiers(t *testing.T) {
	r, _ := newTestRunner(t, Options{Workers: 8, LinesPerWorker: 1})

	var mu sync.Mutex
	seen := make(map[string]bool)
	r.OnLine = func(worker, content string) {
		mu.Lock()
		seen[worker] = true
		mu.Unlock()
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 8, "every worker should report a distinct identifier")
}

func TestRun_LineIdentifierMatchesWorker(t *testing.T) {
	r, capture := newTestRunner(t, Options{Workers: 3, LinesPerWorker: 5, LineLength: 20})

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	for _, entry := range capture.Get(buffer.GetOptions{}) {
		assert.True(t,
			len(entry.Content) > len(entry.Worker) &&
				entry.Content[:len(entry.Worker)] == entry.Worker,
			"line %q should start with its worker id %q", entry.Content, entry.Worker)
	}
}

func TestRun_DefaultLineLength(t *testing.T) {
	r, capture := newTestRunner(t, Options{Workers: 1, LinesPerWorker: 1})

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	entries := capture.Get(buffer.GetOptions{})
	require.Len(t, entries, 1)
	payload := entries[0].Content[len(entries[0].Worker)+2:]
	assert.Len(t, payload, 100)
}

func TestRun_OnLineCallback(t *testing.T) {
	r, _ := newTestRunner(t, Options{Workers: 2, LinesPerWorker: 4, LineLength: 10})

	var mu sync.Mutex
	calls := 0
	r.OnLine = func(worker, content string) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 8, calls)
}

func TestRun_CancelledContext(t *testing.T) {
	r, _ := newTestRunner(t, Options{Workers: 2, LinesPerWorker: 100000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	assert.Error(t, err)
}

func TestRun_ProcessMode_CapturesChildOutput(t *testing.T) {
	// Stand-in worker: emits two lines and ignores the appended
	// line-count/length arguments.
	r, capture := newTestRunner(t, Options{
		Workers:        2,
		LinesPerWorker: 2,
		Processes:      true,
		WorkerCommand:  []string{"sh", "-c", "echo alpha; echo beta"},
	})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), summary.TotalLines)
	assert.Len(t, summary.LinesByWorker, 2)
	assert.Empty(t, summary.FailedWorkers)

	// Worker identifiers in process mode are the child pids
	counts := capture.CountByWorker()
	require.Len(t, counts, 2)
	for worker, n := range counts {
		assert.Equal(t, 2, n, "worker %s", worker)
	}
}

func TestRun_ProcessMode_CrashedWorkerReported(t *testing.T) {
	r, _ := newTestRunner(t, Options{
		Workers:        2,
		LinesPerWorker: 1,
		Processes:      true,
		WorkerCommand:  []string{"sh", "-c", "exit 1"},
	})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	// A crashing worker is not retried and does not affect its sibling
	assert.Len(t, summary.FailedWorkers, 2)
}

func TestRun_ProcessModeRequiresCommand(t *testing.T) {
	r, _ := newTestRunner(t, Options{Workers: 1, LinesPerWorker: 1, Processes: true})

	_, err := r.Run(context.Background())
	assert.Error(t, err)
}

func TestRunWorker_EmitsQuota(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "text"}

	err := RunWorker(context.Background(), &buf, cfg, 5, 30)
	require.NoError(t, err)

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 5, lines)
}

func TestRunWorker_ZeroLines(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "text"}

	require.NoError(t, RunWorker(context.Background(), &buf, cfg, 0, 30))
	assert.Zero(t, buf.Len())
}

func TestRunWorker_NegativeLines(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "text"}

	assert.Error(t, RunWorker(context.Background(), &buf, cfg, -1, 30))
}

func TestRunWorker_PayloadShape(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "text"}

	require.NoError(t, RunWorker(context.Background(), &buf, cfg, 3, 100))

	pid := fmt.Sprint(os.Getpid())
	payloadPattern := regexp.MustCompile(pid + `: [A-Z0-9]{100}`)
	matches := payloadPattern.FindAll(buf.Bytes(), -1)
	assert.Len(t, matches, 3)
}
