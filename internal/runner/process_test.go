package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_CapturesStdout(t *testing.T) {
	proc := NewProcess([]string{"sh", "-c", "echo one; echo two"}, "test", DefaultProcessConfig())

	var mu sync.Mutex
	var lines []string
	proc.OnLine = func(content, stream string) {
		mu.Lock()
		defer mu.Unlock()
		if stream == "stdout" {
			lines = append(lines, content)
		}
	}

	require.NoError(t, proc.Start())
	require.NoError(t, proc.Wait())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestProcess_CapturesStderr(t *testing.T) {
	proc := NewProcess([]string{"sh", "-c", "echo oops >&2"}, "test", DefaultProcessConfig())

	var mu sync.Mutex
	var stderrLines []string
	proc.OnLine = func(content, stream string) {
		mu.Lock()
		defer mu.Unlock()
		if stream == "stderr" {
			stderrLines = append(stderrLines, content)
		}
	}

	require.NoError(t, proc.Start())
	require.NoError(t, proc.Wait())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"oops"}, stderrLines)
}

func TestProcess_ReportsPIDAndExitCode(t *testing.T) {
	proc := NewProcess([]string{"sh", "-c", "exit 0"}, "test", DefaultProcessConfig())

	var startedPID int
	var exitCode int
	exited := make(chan struct{})

	proc.OnStart = func(pid int) { startedPID = pid }
	proc.OnExit = func(code int) {
		exitCode = code
		close(exited)
	}

	require.NoError(t, proc.Start())
	assert.Greater(t, proc.PID(), 0)
	assert.Equal(t, proc.PID(), startedPID)

	require.NoError(t, proc.Wait())

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit never fired")
	}

	assert.Equal(t, 0, exitCode)
	require.NotNil(t, proc.ExitCode())
	assert.Equal(t, 0, *proc.ExitCode())
}

func TestProcess_NonZeroExit(t *testing.T) {
	proc := NewProcess([]string{"sh", "-c", "exit 3"}, "test", DefaultProcessConfig())

	require.NoError(t, proc.Start())
	require.NoError(t, proc.Wait())

	require.NotNil(t, proc.ExitCode())
	assert.Equal(t, 3, *proc.ExitCode())
	assert.False(t, proc.IsRunning())
}

func TestProcess_StartFailure(t *testing.T) {
	proc := NewProcess([]string{"/nonexistent/binary"}, "test", DefaultProcessConfig())
	assert.Error(t, proc.Start())
}

func TestProcess_EmptyCommand(t *testing.T) {
	proc := NewProcess(nil, "test", DefaultProcessConfig())
	assert.Error(t, proc.Start())
}

func TestProcess_DoubleStart(t *testing.T) {
	proc := NewProcess([]string{"sleep", "5"}, "test", DefaultProcessConfig())
	require.NoError(t, proc.Start())
	defer proc.Close()

	assert.Error(t, proc.Start())
}

func TestProcess_Stop(t *testing.T) {
	cfg := DefaultProcessConfig()
	cfg.GracefulShutdownTimeout = 2 * time.Second

	proc := NewProcess([]string{"sleep", "30"}, "test", cfg)
	require.NoError(t, proc.Start())

	done := make(chan error, 1)
	go func() { done <- proc.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return in time")
	}

	assert.False(t, proc.IsRunning())
}

func TestProcess_RestartOnFailure(t *testing.T) {
	cfg := DefaultProcessConfig()
	cfg.RestartOnFailure = true
	cfg.MaxRestarts = 2
	cfg.RestartInitialDelay = 10 * time.Millisecond
	cfg.RestartMaxDelay = 50 * time.Millisecond

	proc := NewProcess([]string{"sh", "-c", "exit 1"}, "test", cfg)

	var mu sync.Mutex
	exits := 0
	proc.OnExit = func(code int) {
		mu.Lock()
		exits++
		mu.Unlock()
	}

	require.NoError(t, proc.Start())
	require.NoError(t, proc.Wait())

	mu.Lock()
	defer mu.Unlock()
	// Initial run plus two restarts
	assert.Equal(t, 3, exits)
	assert.Equal(t, 2, proc.RestartCount())
}

func TestProcess_NoRestartByDefault(t *testing.T) {
	proc := NewProcess([]string{"sh", "-c", "exit 1"}, "test", DefaultProcessConfig())

	require.NoError(t, proc.Start())
	require.NoError(t, proc.Wait())

	assert.Equal(t, 0, proc.RestartCount())
}

func TestRestartDelay_Grows(t *testing.T) {
	cfg := DefaultProcessConfig()
	cfg.RestartInitialDelay = 100 * time.Millisecond
	cfg.RestartMaxDelay = 1 * time.Second

	proc := NewProcess([]string{"true"}, "test", cfg)

	first := proc.restartDelay(0)
	second := proc.restartDelay(1)
	third := proc.restartDelay(5)

	assert.Equal(t, 100*time.Millisecond, first)
	assert.Greater(t, second, first)
	assert.LessOrEqual(t, third, cfg.RestartMaxDelay)
}
