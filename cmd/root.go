package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/logspam/logspam/internal/config"
	"github.com/logspam/logspam/internal/logging"
	"github.com/logspam/logspam/internal/metrics"
)

var (
	// Global flags
	configFile string
	verbose    bool

	// Global configuration
	appConfig *config.Config

	loggingOnce sync.Once
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "logspam",
	Short: "logspam - concurrent log traffic generator with rotation tooling",
	Long: `logspam generates log traffic from many concurrent workers and ships the
file-side tooling that usually goes with it.

The spam command fans out a fixed number of workers, each emitting a fixed
number of random log lines tagged with the worker's identifier, and waits
for all of them. The tee command copies stdin to a file while rotating it
on demand, on a schedule, or by size.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $LOGSPAM_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configPath := configFile

	if configPath == "" {
		// Check for LOGSPAM_CONFIG environment variable
		if envConfig := os.Getenv("LOGSPAM_CONFIG"); envConfig != "" {
			configPath = envConfig
		}
		// Otherwise let config package handle auto-discovery
	}

	var err error
	appConfig, err = config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Override verbose setting from command line flag if provided
	if verbose {
		appConfig.Logging.Verbose = true
		if appConfig.Logging.Level == "info" {
			appConfig.Logging.Level = "debug"
		}
	}

	initLogging()
}

// initLogging installs the process-wide default logger exactly once
func initLogging() {
	loggingOnce.Do(func() {
		logger, err := logging.NewLogger(appConfig.Logging)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
			os.Exit(1)
		}
		logging.SetDefault(logger)
		metrics.Default().SetLogger(logger.Logger)
	})
}

// GetConfig returns the global configuration
// This should be called after cobra initialization
func GetConfig() *config.Config {
	if appConfig == nil {
		// Fallback to default config if not initialized
		return config.DefaultConfig()
	}
	return appConfig
}
