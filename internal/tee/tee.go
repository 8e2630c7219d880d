// Package tee copies its input to an output file while echoing it to
// stdout, reopening the file on demand so a concurrent rotation can move
// it aside without losing lines.
package tee

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/logspam/logspam/internal/errors"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/metrics"
)

// maxLineSize bounds a single input line
const maxLineSize = 1024 * 1024

// Options configures a Tee
type Options struct {
	// OutputFile is the file to copy input into
	OutputFile string

	// Truncate empties the output file on first open instead of appending
	Truncate bool

	// Quiet suppresses the stdout echo
	Quiet bool

	// ReopenRetries caps reopen attempts after a rotation, 0 uses a default
	ReopenRetries int
}

// Tee streams input lines to the output file and optionally to an echo
// writer. Reload is safe to call from another goroutine; the next write
// reopens the file.
type Tee struct {
	opts    Options
	logger  *logging.Logger
	monitor *metrics.Monitor

	mu     sync.Mutex
	file   *os.File
	reload atomic.Bool

	lines int64
	bytes int64
}

// New creates a tee for the given options
func New(opts Options, logger *logging.Logger) *Tee {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tee{
		opts:    opts,
		logger:  logger,
		monitor: metrics.Default(),
	}
}

// Reload marks the file handle stale, forcing a reopen before the next write
func (t *Tee) Reload() {
	t.reload.Store(true)
}

// Lines returns the number of lines written so far
func (t *Tee) Lines() int64 {
	return atomic.LoadInt64(&t.lines)
}

// Bytes returns the number of bytes written so far
func (t *Tee) Bytes() int64 {
	return atomic.LoadInt64(&t.bytes)
}

func (t *Tee) open() error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if t.opts.Truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(t.opts.OutputFile, flags, 0644)
	if err != nil {
		return errors.FileError("OPEN_FAILED", "Failed to open output file", err).
			WithDetails("output_file", t.opts.OutputFile)
	}

	t.mu.Lock()
	t.file = f
	t.mu.Unlock()
	return nil
}

// reopen closes the current handle and reopens the output path, retrying
// with exponential backoff in case the rotation has not recreated it yet
func (t *Tee) reopen() error {
	t.mu.Lock()
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	t.mu.Unlock()

	retries := t.opts.ReopenRetries
	if retries <= 0 {
		retries = 5
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	open := func() error {
		f, err := os.OpenFile(t.opts.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.file = f
		t.mu.Unlock()
		return nil
	}

	if err := backoff.Retry(open, backoff.WithMaxRetries(bo, uint64(retries))); err != nil {
		return errors.FileError("REOPEN_FAILED",
			"Failed to reopen output file after rotation", err).
			WithDetails("output_file", t.opts.OutputFile)
	}

	t.logger.Debug("reopened output file", "output_file", t.opts.OutputFile)
	return nil
}

func (t *Tee) writeLine(line []byte) error {
	if t.reload.Swap(false) {
		if err := t.reopen(); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.file.Write(line)
	if err != nil {
		return errors.FileError("WRITE_FAILED", "Failed to write to output file", err)
	}
	if _, err := t.file.Write([]byte{'\n'}); err != nil {
		return errors.FileError("WRITE_FAILED", "Failed to write to output file", err)
	}

	atomic.AddInt64(&t.lines, 1)
	atomic.AddInt64(&t.bytes, int64(n)+1)
	return nil
}

// Run copies input to the output file line by line until EOF or context
// cancellation. When echo is non-nil and Quiet is unset, each line is also
// written there.
func (t *Tee) Run(ctx context.Context, input io.Reader, echo io.Writer) error {
	if err := t.open(); err != nil {
		return err
	}
	defer func() {
		t.mu.Lock()
		if t.file != nil {
			t.file.Close()
			t.file = nil
		}
		t.mu.Unlock()
	}()

	start := time.Now()

	// Reader goroutine feeds lines through a channel so the write loop can
	// still observe context cancellation while the read blocks.
	lines := make(chan string, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				select {
				case err := <-readErr:
					if err != nil {
						return errors.FileError("READ_FAILED", "Failed to read input", err)
					}
				default:
				}

				t.monitor.LogTiming("tee", start)
				t.logger.Info("input drained",
					"output_file", t.opts.OutputFile,
					"lines", t.Lines(),
					"bytes", t.Bytes(),
					"duration", time.Since(start).String())
				return nil
			}

			if err := t.writeLine([]byte(line)); err != nil {
				return err
			}

			if echo != nil && !t.opts.Quiet {
				if _, err := fmt.Fprintln(echo, line); err != nil {
					return errors.FileError("ECHO_FAILED", "Failed to echo input", err)
				}
			}
		}
	}
}
