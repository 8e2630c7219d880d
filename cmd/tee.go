package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logspam/logspam/internal/config"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/rotate"
	"github.com/logspam/logspam/internal/tee"
)

var (
	// Tee command flags
	teeOutputFile    string
	teeTriggerFile   string
	teeTruncate      bool
	teeQuiet         bool
	teeCompress      bool
	teeMaxFiles      int
	teeMaxDays       int
	teeScanFrequency time.Duration
	teeAutoRotate    time.Duration
	teeMaxSize       string
	teePreScript     string
	teePostScript    string
)

// teeCmd represents the tee command
var teeCmd = &cobra.Command{
	Use:   "tee -o <file>",
	Short: "Copy stdin to a file with integrated log rotation",
	Long: `Copy stdin to an output file while echoing it to stdout, like tee(1),
with log rotation built in.

Rotation moves the output file aside and archives it as "<file>.1"
(optionally gzipped), shifting older archives up. It can be requested by
writing "1" to a trigger file, on a fixed schedule, or when the output
file reaches a size limit. Old archives are pruned by count and by age.`,
	Example: `  # Rotate when "1" is written to /tmp/rotate.now, keep 5 archives
  app | logspam tee -o app.log --trigger-file /tmp/rotate.now --max-files 5

  # Rotate hourly, gzip archives, drop archives older than 7 days
  app | logspam tee -o app.log --auto-rotate-frequency 1h --compress --max-days 7

  # Rotate at 100MB, run an upload hook on each archive
  app | logspam tee -o app.log --max-size 100MB --post-script 'upload "$1"'`,
	RunE: runTee,
}

func init() {
	rootCmd.AddCommand(teeCmd)

	teeCmd.Flags().StringVarP(&teeOutputFile, "output", "o", "", "output file to copy stdin to (required)")
	teeCmd.Flags().StringVar(&teeTriggerFile, "trigger-file", "", "rotate when this file contains \"1\"; a status of 0 (ok) or 2 (failed) is written back")
	teeCmd.Flags().BoolVar(&teeTruncate, "truncate", false, "truncate the output file on start instead of appending")
	teeCmd.Flags().BoolVarP(&teeQuiet, "quiet", "q", false, "do not echo input to stdout")
	teeCmd.Flags().BoolVar(&teeCompress, "compress", false, "gzip archives")
	teeCmd.Flags().IntVar(&teeMaxFiles, "max-files", -1, "number of archives to keep (-1 = unlimited)")
	teeCmd.Flags().IntVar(&teeMaxDays, "max-days", -1, "drop archives older than this many days (-1 = unlimited)")
	teeCmd.Flags().DurationVar(&teeScanFrequency, "scan-frequency", 0, "how often to poll the trigger file and output size (default from config, 1s)")
	teeCmd.Flags().DurationVar(&teeAutoRotate, "auto-rotate-frequency", 0, "rotate on this fixed schedule")
	teeCmd.Flags().StringVar(&teeMaxSize, "max-size", "", "rotate when the output file reaches this size (e.g. 100MB)")
	teeCmd.Flags().StringVar(&teePreScript, "pre-script", "", "shell script run before archiving; gets the moved file as $1")
	teeCmd.Flags().StringVar(&teePostScript, "post-script", "", "shell script run after archiving; gets the archive as $1")

	teeCmd.MarkFlagRequired("output")
}

func runTee(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	rotateCfg := rotate.Config{
		MaxFiles:   teeMaxFiles,
		MaxAgeDays: teeMaxDays,
		Compress:   teeCompress || cfg.Rotate.Compress,
		PreScript:  teePreScript,
		PostScript: teePostScript,
	}
	if !cmd.Flags().Changed("max-files") {
		rotateCfg.MaxFiles = cfg.Rotate.MaxFiles
	}
	if !cmd.Flags().Changed("max-days") {
		rotateCfg.MaxAgeDays = cfg.Rotate.MaxAgeDays
	}
	if rotateCfg.PreScript == "" {
		rotateCfg.PreScript = cfg.Rotate.PreScript
	}
	if rotateCfg.PostScript == "" {
		rotateCfg.PostScript = cfg.Rotate.PostScript
	}

	scanFrequency := teeScanFrequency
	if scanFrequency == 0 {
		scanFrequency = cfg.Rotate.ScanFrequency
	}

	maxSize := teeMaxSize
	if maxSize == "" {
		maxSize = cfg.Rotate.MaxFileSize
	}
	var maxSizeBytes int64
	if maxSize != "" {
		var err error
		maxSizeBytes, err = config.ParseSize(maxSize)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
	}

	logger, err := logging.NewTeeLogger(cfg.Logging, teeOutputFile)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := tee.New(tee.Options{
		OutputFile:    teeOutputFile,
		Truncate:      teeTruncate,
		Quiet:         teeQuiet,
		ReopenRetries: int(cfg.Rotate.ReopenRetries),
	}, logger)

	rotator := rotate.NewRotator(teeOutputFile, rotateCfg, logger)
	rotator.SetReloadFunc(writer.Reload)

	watchErr := make(chan error, 1)
	if teeTriggerFile != "" {
		go func() {
			// A watcher that cannot report status back is fatal; stop the
			// whole tee rather than risk rotating data away in a loop
			if err := rotator.WatchTriggerFile(ctx, teeTriggerFile, scanFrequency); err != nil {
				watchErr <- err
				stop()
			}
		}()
	}
	if teeAutoRotate > 0 {
		go rotator.RotateEvery(ctx, teeAutoRotate)
	}
	if maxSizeBytes > 0 {
		go rotator.RotateOnSize(ctx, maxSizeBytes, scanFrequency)
	}

	err = writer.Run(ctx, os.Stdin, os.Stdout)
	select {
	case werr := <-watchErr:
		return werr
	default:
	}
	return err
}
