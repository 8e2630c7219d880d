// Package rotate implements log file rotation with numbered archives,
// optional gzip compression, retention rules and shell hooks.
//
// A rotation moves the live output file aside, recreates it empty, and files
// the old contents away as "<output>.1" (or "<output>.1.gz"), shifting
// existing archives up by one. Retention then prunes archives by count
// and by age.
package rotate

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/djherbis/times"

	"github.com/logspam/logspam/internal/errors"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/metrics"
)

// Config controls rotation behavior
type Config struct {
	// MaxFiles is the number of archives to keep, -1 for unlimited
	MaxFiles int

	// MaxAgeDays removes archives older than this many days, -1 for unlimited
	MaxAgeDays int

	// Compress gzips new archives
	Compress bool

	// PreScript runs via /bin/sh before the old contents are archived.
	// The path of the moved-aside file is passed as $1.
	PreScript string

	// PostScript runs via /bin/sh after the archive is in place.
	// The archive path is passed as $1.
	PostScript string
}

// Rotator rotates a single output file. All rotations are serialized, so
// timed, size and trigger-file rotation can share one Rotator.
type Rotator struct {
	outputFile string
	config     Config
	logger     *logging.Logger
	monitor    *metrics.Monitor

	mu       sync.Mutex
	onReload func()
}

// NewRotator creates a rotator for the given output file
func NewRotator(outputFile string, cfg Config, logger *logging.Logger) *Rotator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Rotator{
		outputFile: outputFile,
		config:     cfg,
		logger:     logger,
		monitor:    metrics.Default(),
	}
}

// SetReloadFunc registers a callback invoked once the live file has been
// moved aside and recreated. The writer uses it to reopen its handle.
func (r *Rotator) SetReloadFunc(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = fn
}

// OutputFile returns the path being rotated
func (r *Rotator) OutputFile() string {
	return r.outputFile
}

// Rotate performs one full rotation cycle
func (r *Rotator) Rotate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.monitor.TrackOperation(ctx, "rotate", func() error {
		return r.rotate(ctx)
	})
}

func (r *Rotator) rotate(ctx context.Context) error {
	if _, err := os.Stat(r.outputFile); err != nil {
		return errors.FileError("OUTPUT_MISSING", "Output file does not exist", err).
			WithDetails("output_file", r.outputFile)
	}

	movedAside, err := r.moveAside()
	if err != nil {
		return err
	}

	r.logger.Debug("moved output file aside",
		"output_file", r.outputFile,
		"temp_file", movedAside)

	if r.config.PreScript != "" {
		if err := r.runHook(ctx, "pre", r.config.PreScript, movedAside); err != nil {
			return err
		}
		// The hook may have consumed the file (e.g. uploaded and removed it)
		if _, err := os.Stat(movedAside); err != nil {
			r.logger.Info("pre-rotate script removed file, skipping archive",
				"file", movedAside)
			return r.applyRetention()
		}
	}

	archives := findArchives(r.outputFile)
	for i := len(archives) - 1; i >= 0; i-- {
		if err := archives[i].shiftUp(); err != nil {
			return err
		}
	}

	newest := archiveFile{name: r.outputFile, index: 1, compressed: r.config.Compress}
	if r.config.Compress {
		err = gzipFile(movedAside, newest.path())
	} else {
		err = copyFile(movedAside, newest.path())
	}
	if err != nil {
		return err
	}

	if err := os.Remove(movedAside); err != nil {
		return errors.FileError("REMOVE_FAILED", "Failed to remove temporary file", err)
	}

	r.logger.Info("rotated output file",
		"output_file", r.outputFile,
		"archive", newest.path(),
		"compressed", r.config.Compress)

	if r.config.PostScript != "" {
		if err := r.runHook(ctx, "post", r.config.PostScript, newest.path()); err != nil {
			return err
		}
	}

	return r.applyRetention()
}

// moveAside renames the live file to a temporary name and recreates it empty,
// then signals the writer to reopen. Writers keep appending to the moved file
// until they reload, so no lines are lost.
func (r *Rotator) moveAside() (string, error) {
	tmp := nextFreeFile(r.outputFile + ".tmp")

	if err := os.Rename(r.outputFile, tmp); err != nil {
		return "", errors.RotateError("MOVE_ASIDE_FAILED",
			"Failed to move output file aside", err).
			WithDetails("output_file", r.outputFile)
	}

	f, err := os.OpenFile(r.outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", errors.FileError("RECREATE_FAILED",
			"Failed to recreate output file", err)
	}
	f.Close()

	if r.onReload != nil {
		r.onReload()
	}

	return tmp, nil
}

// runHook executes a rotation hook through /bin/sh with the file path as $1
func (r *Rotator) runHook(ctx context.Context, stage, script, file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script, "sh", abs)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.RotateError("HOOK_FAILED",
			"Rotation "+stage+"-script failed", err).
			WithDetails("script", script).
			WithDetails("output", string(output))
	}

	r.monitor.LogTiming("rotate_hook_"+stage, start,
		slog.String("script", script))
	return nil
}

// applyRetention prunes archives by count, then by age
func (r *Rotator) applyRetention() error {
	if r.config.MaxFiles >= 0 {
		archives := findArchives(r.outputFile)
		for _, a := range archives {
			if a.index > r.config.MaxFiles {
				if err := os.Remove(a.path()); err != nil {
					return errors.FileError("RETENTION_REMOVE_FAILED",
						"Failed to remove archive past count limit", err).
						WithDetails("archive", a.path())
				}
				r.logger.Debug("removed archive past count limit",
					"archive", a.path(), "max_files", r.config.MaxFiles)
			}
		}
	}

	if r.config.MaxAgeDays >= 0 {
		cutoff := time.Now().Add(-time.Duration(r.config.MaxAgeDays) * 24 * time.Hour)
		for _, a := range findArchives(r.outputFile) {
			ts, err := times.Stat(a.path())
			if err != nil || !ts.HasBirthTime() {
				// Without a creation time the archive's age is unknown,
				// so it is never pruned by age
				continue
			}
			if ts.BirthTime().Before(cutoff) {
				if err := os.Remove(a.path()); err != nil {
					return errors.FileError("RETENTION_REMOVE_FAILED",
						"Failed to remove archive past age limit", err).
						WithDetails("archive", a.path())
				}
				r.logger.Debug("removed archive past age limit",
					"archive", a.path(), "max_age_days", r.config.MaxAgeDays)
			}
		}
	}

	return nil
}
