package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nsap/bidsbatch/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bidsbatch configuration",
		Long: `Configuration management commands for bidsbatch.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for bidsbatch.

The configuration is saved to the path shown by 'bidsbatch config path'
unless --config is given. Use --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", configPath)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "bidsbatch Configuration Setup")
			fmt.Fprintln(out, "=============================")
			fmt.Fprintln(out, "Press Enter to keep the value in brackets.")
			fmt.Fprintln(out)

			cfg := config.Default()
			reader := bufio.NewReader(cmd.InOrStdin())
			ask := func(label, current string) string {
				fmt.Fprintf(out, "%s [%s]: ", label, current)
				input, _ := reader.ReadString('\n')
				if input = strings.TrimSpace(input); input != "" {
					return input
				}
				return current
			}

			if v, err := strconv.Atoi(ask("Parallel jobs", strconv.Itoa(cfg.Workers))); err == nil {
				cfg.Workers = v
			}
			cfg.Queue = ask("PBS queue", cfg.Queue)
			cfg.Runtime = ask("Container runtime", cfg.Runtime)
			cfg.Image = ask("Container image", cfg.Image)
			cfg.Marker = ask("Preferred candidate marker", cfg.Marker)
			cfg.Progress = ask("Progress display (bar, jobs, none)", cfg.Progress)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, configPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nConfiguration saved to %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Current Configuration:")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintf(out, "Parallel jobs:      %d\n", cfg.Workers)
			fmt.Fprintf(out, "PBS queue:          %s\n", cfg.Queue)
			fmt.Fprintf(out, "PBS resources:      %s\n", orNone(strings.Join(cfg.Resources, "; ")))
			fmt.Fprintf(out, "Kill grace period:  %s\n", cfg.GracePeriod)
			fmt.Fprintf(out, "Container runtime:  %s\n", cfg.Runtime)
			fmt.Fprintf(out, "Container image:    %s\n", orNone(cfg.Image))
			fmt.Fprintf(out, "Candidate marker:   %s\n", cfg.Marker)
			fmt.Fprintf(out, "Subject prefix:     %s\n", cfg.SubjectPrefix)
			fmt.Fprintf(out, "Session prefix:     %s\n", cfg.SessionPrefix)
			fmt.Fprintf(out, "Log level:          %s\n", cfg.LogLevel)
			fmt.Fprintf(out, "Progress display:   %s\n", cfg.Progress)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration file: %s\n", config.GetDefaultConfigPath())
			fmt.Fprintf(out, "Pipelines directory: %s\n", config.GetDefaultPipelineDir())
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
