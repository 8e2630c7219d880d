package spam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/logspam/logspam/internal/config"
	"github.com/logspam/logspam/internal/generator"
	"github.com/logspam/logspam/internal/logging"
)

// RunWorker is the body of a process-mode worker: emit the given number of
// lines of the given length to w, one log record per line, identified by
// this process's pid. It is invoked by the hidden spam-worker subcommand in
// the re-executed child.
func RunWorker(ctx context.Context, w io.Writer, cfg config.LoggingConfig, lines, lineLength int) error {
	if lines < 0 {
		return fmt.Errorf("line count must be non-negative, got %d", lines)
	}

	logger, err := logging.NewWriterLogger(cfg, w)
	if err != nil {
		return err
	}

	pid := os.Getpid()
	workerID := fmt.Sprint(pid)
	gen := generator.NewTimeSeeded(int64(pid))

	for i := 0; i < lines; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.LogAttrs(ctx, slog.LevelInfo,
			workerID+": "+gen.Line(lineLength),
			slog.String("worker", workerID))
	}

	return nil
}
