// Package runner provides process execution and line capture for logspam.
//
// The process runner component handles:
// - Spawning a worker process and tracking its lifecycle
// - stdout/stderr capture, line by line
// - Graceful shutdown (SIGTERM, then SIGKILL after a timeout)
// - Optional restart with exponential backoff
//
// Example usage:
//
//	proc := runner.NewProcess([]string{"logspam", "spam-worker", "100"}, "worker-1", runner.DefaultProcessConfig())
//	proc.OnLine = func(line, stream string) { ... }
//
//	if err := proc.Start(); err != nil {
//		return err
//	}
//	proc.Wait()
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/logspam/logspam/internal/errors"
	"github.com/logspam/logspam/internal/logging"
)

// Process manages a single worker process and its captured output
type Process struct {
	// Process configuration
	command []string
	label   string
	config  ProcessConfig

	// Process state
	cmd          *exec.Cmd
	pid          int
	running      bool
	exitCode     *int
	restartCount int
	mutex        sync.RWMutex

	// Context and lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Callbacks
	OnStart func(pid int)
	OnExit  func(exitCode int)
	OnLine  func(content, stream string)
	OnError func(error)
}

// ProcessConfig contains configuration options for the process runner
type ProcessConfig struct {
	WorkingDir              string
	Environment             map[string]string
	RestartOnFailure        bool
	MaxRestarts             int
	RestartInitialDelay     time.Duration
	RestartMaxDelay         time.Duration
	GracefulShutdownTimeout time.Duration
}

// DefaultProcessConfig returns default configuration for the process runner
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		RestartOnFailure:        false,
		MaxRestarts:             0,
		RestartInitialDelay:     1 * time.Second,
		RestartMaxDelay:         30 * time.Second,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

// NewProcess creates a new process runner for the given argv
func NewProcess(command []string, label string, config ProcessConfig) *Process {
	ctx, cancel := context.WithCancel(context.Background())

	workingDir := config.WorkingDir
	if workingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workingDir = wd
		}
	}
	config.WorkingDir = workingDir

	return &Process{
		command: command,
		label:   label,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the process
func (p *Process) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running {
		return errors.ErrProcessRunning
	}

	if len(p.command) == 0 {
		return errors.ValidationError("EMPTY_COMMAND", "Command is empty", nil)
	}

	p.cmd = exec.Command(p.command[0], p.command[1:]...)
	p.cmd.Dir = p.config.WorkingDir

	p.cmd.Env = os.Environ()
	for key, value := range p.config.Environment {
		p.cmd.Env = append(p.cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return errors.ProcessError("PIPE_CREATION_FAILED", "Failed to create stdout pipe", err)
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return errors.ProcessError("PIPE_CREATION_FAILED", "Failed to create stderr pipe", err)
	}

	if err := p.cmd.Start(); err != nil {
		return errors.ProcessError("PROCESS_START_FAILED", "Failed to start process", err)
	}

	p.pid = p.cmd.Process.Pid
	p.running = true
	p.exitCode = nil

	// Capture both streams and wait for exit
	p.wg.Add(3)
	go p.captureStream(stdout, "stdout")
	go p.captureStream(stderr, "stderr")
	go p.handleExit()

	if p.OnStart != nil {
		p.OnStart(p.pid)
	}

	logging.Debug("Process started", "label", p.label, "pid", p.pid, "command", strings.Join(p.command, " "))
	return nil
}

// captureStream reads a pipe line by line and hands lines to OnLine
func (p *Process) captureStream(pipe io.ReadCloser, stream string) {
	defer p.wg.Done()
	defer pipe.Close()

	reader := bufio.NewReaderSize(pipe, 64*1024)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// A partial line at EOF is still a line
			if err == io.EOF && len(line) > 0 {
				p.emitLine(line, stream)
			} else if err != io.EOF && p.ctx.Err() == nil {
				if p.OnError != nil {
					p.OnError(errors.ProcessError("STREAM_READ_FAILED",
						fmt.Sprintf("Failed to read %s", stream), err))
				}
			}
			return
		}

		p.emitLine(line, stream)

		if p.ctx.Err() != nil {
			return
		}
	}
}

func (p *Process) emitLine(line, stream string) {
	if p.OnLine != nil {
		p.OnLine(strings.TrimRight(line, "\n\r"), stream)
	}
}

// handleExit waits for process completion
func (p *Process) handleExit() {
	defer p.wg.Done()

	done := make(chan error, 1)
	go func() {
		done <- p.cmd.Wait()
	}()

	var err error
	select {
	case err = <-done:
		// Process completed
	case <-p.ctx.Done():
		// Context cancelled, kill process and wait for cleanup
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		<-done
		return
	}

	p.mutex.Lock()
	p.running = false
	exitCode := 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			exitCode = 1
		}
	}
	p.exitCode = &exitCode
	restartCount := p.restartCount
	p.mutex.Unlock()

	if p.OnExit != nil {
		p.OnExit(exitCode)
	}

	logging.Debug("Process exited", "label", p.label, "pid", p.pid, "exit_code", exitCode)

	// Restart if configured. By default workers are not retried: a crash is
	// treated the same as normal completion.
	if p.config.RestartOnFailure && exitCode != 0 && restartCount < p.config.MaxRestarts {
		p.restart(restartCount)
		return
	}

	p.cancel()
}

// restart waits out the backoff delay and starts the process again
func (p *Process) restart(restartCount int) {
	p.mutex.Lock()
	p.restartCount++
	p.mutex.Unlock()

	delay := p.restartDelay(restartCount)
	logging.Warn("Restarting process",
		"label", p.label,
		"delay", delay,
		"attempt", restartCount+1,
		"max_attempts", p.config.MaxRestarts)

	select {
	case <-p.ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := p.Start(); err != nil {
		if p.OnError != nil {
			p.OnError(errors.WrapError(err, "restart failed"))
		}
		p.cancel()
	}
}

// restartDelay computes the exponential backoff delay for the given attempt
func (p *Process) restartDelay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.RestartInitialDelay
	bo.MaxInterval = p.config.RestartMaxDelay
	bo.RandomizationFactor = 0
	bo.Reset()

	delay := bo.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = bo.NextBackOff()
	}
	if delay == backoff.Stop || delay > p.config.RestartMaxDelay {
		delay = p.config.RestartMaxDelay
	}
	return delay
}

// Stop stops the process gracefully: SIGTERM first, SIGKILL after the
// graceful shutdown timeout.
func (p *Process) Stop() error {
	p.mutex.RLock()
	cmd := p.cmd
	running := p.running
	p.mutex.RUnlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil // Already stopped
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// If SIGTERM fails, try SIGKILL
		if killErr := cmd.Process.Kill(); killErr != nil {
			return errors.ProcessError("PROCESS_KILL_FAILED", "Failed to kill process", killErr)
		}
		p.setStopped()
		return nil
	}

	// handleExit owns cmd.Wait and cancels the context once the exit has
	// been fully processed
	select {
	case <-p.ctx.Done():
		p.setStopped()
		return nil
	case <-time.After(p.config.GracefulShutdownTimeout):
		if err := cmd.Process.Kill(); err != nil {
			return errors.ProcessError("PROCESS_KILL_FAILED", "Failed to kill process", err)
		}
		p.setStopped()
		return nil
	}
}

func (p *Process) setStopped() {
	p.mutex.Lock()
	p.running = false
	p.mutex.Unlock()
}

// Kill forcefully kills the process
func (p *Process) Kill() error {
	p.mutex.RLock()
	cmd := p.cmd
	running := p.running
	p.mutex.RUnlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}

	return cmd.Process.Kill()
}

// Wait blocks until the process has exited and all capture goroutines have
// drained their pipes.
func (p *Process) Wait() error {
	if p.cmd == nil {
		return nil
	}

	p.wg.Wait()
	return nil
}

// Close shuts down the process runner
func (p *Process) Close() error {
	p.cancel()

	if p.IsRunning() {
		p.Stop()
	}

	return p.Wait()
}

// IsRunning returns true if the process is currently running
func (p *Process) IsRunning() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.running
}

// PID returns the process ID
func (p *Process) PID() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.pid
}

// ExitCode returns the exit code if the process has exited
func (p *Process) ExitCode() *int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.exitCode
}

// Label returns the process label
func (p *Process) Label() string {
	return p.label
}

// RestartCount returns how many times the process has been restarted
func (p *Process) RestartCount() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.restartCount
}
