// Package cli provides the command-line interface for bidsbatch.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nsap/bidsbatch/internal/config"
	"github.com/nsap/bidsbatch/internal/drivers"
	"github.com/nsap/bidsbatch/internal/logging"
	"github.com/nsap/bidsbatch/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger
	logger *logging.Logger

	// Settings loaded from the config file
	appConfig *config.Config

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bidsbatch",
		Short: "Build manifests from subject/session datasets and dispatch their jobs",
		Long: `bidsbatch ` + version.Version + ` - Built: ` + version.BuildTime + `

Scans a subject/session dataset for the inputs of a processing step, checks
that every job gets a consistent set of files, prints a preview of the
manifest and, with --process, runs one job per subject (or session) locally
or through a PBS queue.

Every driver prints the manifest preview without running anything unless
--process is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.NewDefaultCLILogger()

			path := cfgFile
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				return err
			}
			appConfig = cfg

			level, err := zerolog.ParseLevel(cfg.LogLevel)
			if err != nil {
				logger.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, using info")
				level = zerolog.InfoLevel
			}
			if verbose {
				level = zerolog.DebugLevel
			}
			logging.SetGlobalLevel(level)

			for _, w := range cfg.Warnings {
				logger.Warn().Str("config", path).Msg(w)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop to handle repeated Ctrl+C
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping running jobs...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	if err := AddCommands(rootCmd); err != nil {
		return err
	}
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds one subcommand per built-in driver and the generic ones.
func AddCommands(rootCmd *cobra.Command) error {
	builtins, err := drivers.Builtins()
	if err != nil {
		return err
	}
	for _, d := range builtins {
		rootCmd.AddCommand(newDriverCmd(d))
	}
	rootCmd.AddCommand(newPipelineCmd())
	rootCmd.AddCommand(newDriversCmd())
	rootCmd.AddCommand(newConfigCmd())
	return nil
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetConfig returns the loaded settings, or the defaults before loading.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.Default()
	}
	return appConfig
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
