package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logspam/logspam/internal/buffer"
	"github.com/logspam/logspam/internal/config"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/metrics"
	"github.com/logspam/logspam/internal/runner"
	"github.com/logspam/logspam/internal/spam"
)

var (
	// Spam command flags
	spamProcesses  bool
	spamLineLength int
	spamTailLines  int
)

// spamCmd represents the spam command
var spamCmd = &cobra.Command{
	Use:   "spam <workers> <lines>",
	Short: "Fan out workers that each emit random log lines",
	Long: `Fan out a fixed number of workers, each emitting a fixed number of log
lines, and wait for every worker to finish.

Each line carries the emitting worker's identifier followed by a random
payload of uppercase letters and digits, so interleaved output from
concurrent workers stays attributable. By default workers run as
goroutines inside this process; with --processes each worker is spawned
as a separate OS process and its identifier is the real PID.`,
	Example: `  # 8 workers, 1000 lines each
  logspam spam 8 1000

  # OS-process isolation, 80-character payloads
  logspam spam --processes --line-length 80 4 500

  # Keep the last 20 lines in memory and print them after the run
  logspam spam --tail 20 4 100`,
	Args: cobra.ExactArgs(2),
	RunE: runSpam,
}

func init() {
	rootCmd.AddCommand(spamCmd)

	spamCmd.Flags().BoolVar(&spamProcesses, "processes", false, "run each worker as a separate OS process")
	spamCmd.Flags().IntVar(&spamLineLength, "line-length", 0, "payload length per line (default from config, 100)")
	spamCmd.Flags().IntVar(&spamTailLines, "tail", 0, "keep the last N lines in memory and print them after the run")
}

func runSpam(cmd *cobra.Command, args []string) error {
	workers, err := parseCount(args[0], "workers")
	if err != nil {
		return err
	}
	lines, err := parseCount(args[1], "lines")
	if err != nil {
		return err
	}

	cfg := GetConfig()

	lineLength := spamLineLength
	if lineLength == 0 {
		lineLength = cfg.Spam.LineLength
	}
	if lineLength <= 0 {
		return fmt.Errorf("line length must be positive, got %d", lineLength)
	}

	processes := spamProcesses || cfg.Spam.Processes
	tailLines := spamTailLines
	if tailLines == 0 {
		tailLines = cfg.Spam.TailLines
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewSpamLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	var capture *buffer.RingBuffer
	if tailLines > 0 {
		limits, err := bufferLimits(cfg.Buffer)
		if err != nil {
			return err
		}
		capture = buffer.NewRingBufferWithLimits(tailLines, limits)
		defer capture.Close()
	}

	opts := spam.Options{
		Workers:        workers,
		LinesPerWorker: lines,
		LineLength:     lineLength,
		Processes:      processes,
	}

	if processes {
		executable, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve own executable: %w", err)
		}
		opts.WorkerCommand = []string{executable, "spam-worker"}
		opts.ProcessConfig = runner.ProcessConfig{
			RestartOnFailure:        cfg.Process.RestartOnFailure,
			MaxRestarts:             cfg.Process.MaxRestarts,
			GracefulShutdownTimeout: cfg.Process.GracefulShutdownTimeout,
			RestartInitialDelay:     cfg.Process.RestartInitialDelay,
			RestartMaxDelay:         cfg.Process.RestartMaxDelay,
		}
	}

	summary, err := spam.NewRunner(opts, logger, capture).Run(ctx)
	if err != nil {
		return err
	}

	if tailLines > 0 {
		printTail(capture, tailLines)
	}

	if verbose {
		metrics.Default().LogMetricsSummary(ctx)
	}

	fmt.Fprintf(os.Stderr, "spam: %d workers x %d lines -> %d lines in %s\n",
		summary.Workers, summary.LinesPerWorker, summary.TotalLines,
		summary.Duration.Round(time.Millisecond))

	if len(summary.FailedWorkers) > 0 {
		return fmt.Errorf("%d worker(s) failed: %s",
			len(summary.FailedWorkers), strings.Join(summary.FailedWorkers, ", "))
	}
	return nil
}

// printTail prints the newest captured lines to stderr
func printTail(capture *buffer.RingBuffer, n int) {
	entries := capture.Get(buffer.GetOptions{Lines: n})
	if len(entries) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "--- last %d line(s) ---\n", len(entries))
	for _, entry := range entries {
		fmt.Fprintln(os.Stderr, entry.Content)
	}
}

// bufferLimits converts the buffer configuration into ring buffer limits
func bufferLimits(cfg config.BufferConfig) (buffer.Limits, error) {
	maxSize, err := config.ParseSize(cfg.MaxSize)
	if err != nil {
		return buffer.Limits{}, fmt.Errorf("invalid buffer.max_size: %w", err)
	}
	maxLine, err := config.ParseSize(cfg.MaxLineSize)
	if err != nil {
		return buffer.Limits{}, fmt.Errorf("invalid buffer.max_line_size: %w", err)
	}
	return buffer.Limits{
		MaxSize:         int(maxSize),
		MaxLineSize:     int(maxLine),
		MaxAge:          cfg.MaxAge,
		CleanupInterval: cfg.CleanupInterval,
	}, nil
}

// parseCount parses a non-negative integer argument
func parseCount(arg, name string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s count %q: %w", name, arg, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s count must be non-negative, got %d", name, n)
	}
	return n, nil
}
