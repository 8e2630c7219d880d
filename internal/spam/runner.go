// Package spam implements the fan-out runner: start a number of independent
// workers, each emitting a quota of random log lines, and wait for all of
// them to finish.
//
// Workers come in two flavors. Inline workers are goroutines that each own
// their generator and share no mutable state. Process workers are separate
// OS processes (the logspam binary re-executed as spam-worker) whose output
// is captured line by line.
package spam

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/logspam/logspam/internal/buffer"
	"github.com/logspam/logspam/internal/generator"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/metrics"
	"github.com/logspam/logspam/internal/runner"
)

// Options controls a single fan-out run
type Options struct {
	// Workers is the number of independent workers to start (P >= 0)
	Workers int

	// LinesPerWorker is the number of lines each worker emits (L >= 0)
	LinesPerWorker int

	// LineLength is the payload length for every emitted line
	LineLength int

	// Processes selects OS-process isolation instead of inline goroutines
	Processes bool

	// WorkerCommand is the argv prefix used to spawn process workers,
	// typically the running binary plus its worker subcommand. The line
	// count and length are appended as arguments.
	WorkerCommand []string

	// ProcessConfig configures spawned worker processes
	ProcessConfig runner.ProcessConfig
}

// Summary describes a completed fan-out run
type Summary struct {
	RunID          string
	Workers        int
	LinesPerWorker int
	TotalLines     int64
	LinesByWorker  map[string]int64
	FailedWorkers  []string
	Duration       time.Duration
}

// Runner fans out workers and waits for all of them
type Runner struct {
	opts    Options
	logger  *logging.Logger
	monitor *metrics.Monitor
	capture *buffer.RingBuffer

	// OnLine is called for every emitted line with the worker identifier
	// and the full line content
	OnLine func(worker, content string)
}

// NewRunner creates a fan-out runner. The capture buffer is optional; when
// set, every emitted line is also recorded there.
func NewRunner(opts Options, logger *logging.Logger, capture *buffer.RingBuffer) *Runner {
	if opts.LineLength == 0 {
		opts.LineLength = generator.DefaultLineLength
	}

	return &Runner{
		opts:    opts,
		logger:  logger,
		monitor: metrics.Default(),
		capture: capture,
	}
}

// SetMonitor overrides the metrics monitor used by the run
func (r *Runner) SetMonitor(m *metrics.Monitor) {
	r.monitor = m
}

// Run starts the configured number of workers and blocks until every worker
// has terminated, joining them in spawn order. A zero worker count returns
// immediately with an empty summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.opts.Workers < 0 {
		return nil, fmt.Errorf("worker count must be non-negative, got %d", r.opts.Workers)
	}
	if r.opts.LinesPerWorker < 0 {
		return nil, fmt.Errorf("line count must be non-negative, got %d", r.opts.LinesPerWorker)
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	start := time.Now()

	summary := &Summary{
		RunID:          runID,
		Workers:        r.opts.Workers,
		LinesPerWorker: r.opts.LinesPerWorker,
		LinesByWorker:  make(map[string]int64),
	}

	if r.opts.Workers == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	r.logger.InfoContext(ctx, "Fan-out started",
		slog.Int("workers", r.opts.Workers),
		slog.Int("lines_per_worker", r.opts.LinesPerWorker),
		slog.Int("line_length", r.opts.LineLength),
		slog.Bool("processes", r.opts.Processes))

	var err error
	if r.opts.Processes {
		err = r.runProcesses(ctx, summary)
	} else {
		err = r.runInline(ctx, summary)
	}
	if err != nil {
		return nil, err
	}

	for _, n := range summary.LinesByWorker {
		summary.TotalLines += n
	}
	summary.Duration = time.Since(start)

	r.monitor.LogTiming("spam_run", start,
		slog.Int("workers", summary.Workers),
		slog.Int64("total_lines", summary.TotalLines))

	r.logger.InfoContext(ctx, "Fan-out finished",
		slog.Int64("total_lines", summary.TotalLines),
		slog.Duration("duration", summary.Duration),
		slog.Int("failed_workers", len(summary.FailedWorkers)))

	return summary, nil
}

// runInline fans out goroutine workers, each with its own generator
func (r *Runner) runInline(ctx context.Context, summary *Summary) error {
	type result struct {
		worker string
		lines  int64
	}

	done := make([]chan result, r.opts.Workers)
	for i := range done {
		done[i] = make(chan result, 1)
	}

	pid := os.Getpid()
	for i := 0; i < r.opts.Workers; i++ {
		workerID := fmt.Sprintf("%d.%d", pid, i+1)
		gen := generator.NewTimeSeeded(int64(i))
		ch := done[i]

		go func() {
			var emitted int64
			for n := 0; n < r.opts.LinesPerWorker; n++ {
				if ctx.Err() != nil {
					break
				}
				r.emit(ctx, workerID, pid, gen.Line(r.opts.LineLength))
				emitted++
			}
			ch <- result{worker: workerID, lines: emitted}
		}()
	}

	// Join in spawn order. This only affects when the parent observes
	// completion, not worker execution order.
	for _, ch := range done {
		res := <-ch
		summary.LinesByWorker[res.worker] = res.lines
		r.monitor.AddLines(res.worker, res.lines)
	}

	return ctx.Err()
}

// emit logs one line as "<id>: <payload>" and records it in the capture
// buffer if one is attached
func (r *Runner) emit(ctx context.Context, workerID string, pid int, payload string) {
	content := workerID + ": " + payload

	r.logger.LogAttrs(ctx, slog.LevelInfo, content,
		slog.String("worker", workerID))

	if r.capture != nil {
		r.capture.AddLine(workerID, content, buffer.StreamStdout, pid)
	}
	if r.OnLine != nil {
		r.OnLine(workerID, content)
	}
}

// runProcesses fans out OS-process workers and captures their output
func (r *Runner) runProcesses(ctx context.Context, summary *Summary) error {
	if len(r.opts.WorkerCommand) == 0 {
		return fmt.Errorf("worker command is required in process mode")
	}

	argv := append(append([]string{}, r.opts.WorkerCommand...),
		fmt.Sprint(r.opts.LinesPerWorker), fmt.Sprint(r.opts.LineLength))

	procs := make([]*runner.Process, r.opts.Workers)
	counts := make([]int64, r.opts.Workers)

	for i := 0; i < r.opts.Workers; i++ {
		label := fmt.Sprintf("worker-%d", i+1)
		proc := runner.NewProcess(argv, label, r.opts.ProcessConfig)

		idx := i
		p := proc
		proc.OnLine = func(content, stream string) {
			if stream != "stdout" {
				return
			}
			workerID := fmt.Sprint(p.PID())
			counts[idx]++

			if r.capture != nil {
				r.capture.AddLine(workerID, content, buffer.StreamStdout, p.PID())
			}
			if r.OnLine != nil {
				r.OnLine(workerID, content)
			}

			// Republish the child's line on the parent's stdout
			fmt.Println(content)
		}

		if err := proc.Start(); err != nil {
			// A worker that fails to spawn does not affect its siblings
			r.logger.LogError(ctx, "Failed to start worker", err,
				slog.String("label", label))
			summary.FailedWorkers = append(summary.FailedWorkers, label)
			continue
		}
		procs[i] = proc
	}

	// Join in spawn order
	for i, proc := range procs {
		if proc == nil {
			continue
		}
		proc.Wait()

		workerID := fmt.Sprint(proc.PID())
		summary.LinesByWorker[workerID] = counts[i]
		r.monitor.AddLines(workerID, counts[i])

		if code := proc.ExitCode(); code != nil && *code != 0 {
			summary.FailedWorkers = append(summary.FailedWorkers, workerID)
		}
	}

	return nil
}
