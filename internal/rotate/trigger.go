package rotate

import (
	"context"
	"os"
	"time"

	"github.com/logspam/logspam/internal/errors"
)

// shouldTrigger reports whether the trigger file requests a rotation, which
// it does by containing exactly "1" with an optional trailing newline.
func shouldTrigger(triggerFile string) bool {
	content, err := os.ReadFile(triggerFile)
	if err != nil {
		return false
	}

	s := string(content)
	return s == "1" || s == "1\n" || s == "1\r\n"
}

// WatchTriggerFile polls the trigger file and rotates when it contains "1".
// After the rotation the file is overwritten with a status: "0" on success,
// "2" on failure. Returns nil once the context is cancelled.
//
// A status that cannot be written is fatal: the file would keep reading "1"
// and every scan would rotate again, shredding the archives.
func (r *Rotator) WatchTriggerFile(ctx context.Context, triggerFile string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Debug("watching trigger file",
		"trigger_file", triggerFile,
		"scan_frequency", interval.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !shouldTrigger(triggerFile) {
				continue
			}

			r.logger.Info("trigger file requested rotation", "trigger_file", triggerFile)
			status := "0"
			if err := r.Rotate(ctx); err != nil {
				r.logger.LogError(ctx, "triggered rotation failed", err)
				status = "2"
			}

			if err := os.WriteFile(triggerFile, []byte(status), 0644); err != nil {
				return errors.FileError("TRIGGER_STATUS_FAILED",
					"Failed to write trigger status, stopping to avoid repeated rotation", err).
					WithDetails("trigger_file", triggerFile)
			}
		}
	}
}

// RotateEvery rotates on a fixed schedule until the context is cancelled
func (r *Rotator) RotateEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("scheduled rotation", "interval", interval.String())
			if err := r.Rotate(ctx); err != nil {
				r.logger.LogError(ctx, "scheduled rotation failed", err)
			}
		}
	}
}

// RotateOnSize polls the output file size and rotates once it reaches
// maxBytes. Blocks until the context is cancelled.
func (r *Rotator) RotateOnSize(ctx context.Context, maxBytes int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(r.outputFile)
			if err != nil {
				continue
			}
			if info.Size() < maxBytes {
				continue
			}
			r.logger.Info("size limit reached",
				"output_file", r.outputFile,
				"size", info.Size(),
				"max_size", maxBytes)
			if err := r.Rotate(ctx); err != nil {
				r.logger.LogError(ctx, "size-based rotation failed", err)
			}
		}
	}
}
