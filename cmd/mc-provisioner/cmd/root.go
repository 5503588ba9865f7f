package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/mc-provisioner/internal/config"
	"github.com/oshokin/mc-provisioner/internal/service/inventory"
	"github.com/oshokin/mc-provisioner/internal/service/provision"
	"github.com/oshokin/mc-provisioner/internal/version"
)

var (
	// configPath to the configuration TOML or YAML file.
	configPath string
	// workDir is the provisioning directory.
	workDir string
	// logLevel overrides the configured console log level.
	logLevel string

	// rootCmd represents the base command running the whole pipeline.
	rootCmd = &cobra.Command{
		Use:          version.Name,
		Short:        "Download, verify and assemble Minecraft server and plugin jars",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return provision.Run(cmd.Context(), options())
		},
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Report which artifacts are missing or invalid without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := provision.Scan(cmd.Context(), options())
			if err != nil {
				return err
			}

			printStatuses(cmd, result)

			return nil
		},
	}

	waitCmd = &cobra.Command{
		Use:   "wait",
		Short: "Block until every artifact on disk matches its expected hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return provision.Wait(cmd.Context(), options())
		},
	}

	assembleCmd = &cobra.Command{
		Use:   "assemble",
		Short: "Merge config, bin and plugins into build and write start.sh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return provision.Assemble(cmd.Context(), options())
		},
	}

	pinCmd = &cobra.Command{
		Use:   "pin",
		Short: "Record the hashes of the jars on disk in the lock file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pinned, err := provision.Pin(cmd.Context(), options())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pinned %d artifacts\n", len(pinned.Artifacts))

			return nil
		},
	}
)

// Execute runs the mc-provisioner CLI and exits with non-zero status on error.
func Execute() {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func options() *provision.Options {
	return &provision.Options{
		ConfigPath: configPath,
		Dir:        workDir,
		LogLevel:   logLevel,
	}
}

// printStatuses writes one "status  group/name" line per artifact in key order.
func printStatuses(cmd *cobra.Command, result *inventory.Result) {
	keys := make([]string, 0, len(result.Statuses))
	for key := range result.Statuses {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-12s  %s\n", result.Statuses[key], key)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file, relative paths are resolved against --dir")
	flags.StringVarP(&workDir, "dir", "d", ".", "provisioning directory holding bin, plugins, config and build")
	flags.StringVar(&logLevel, "log-level", "", "console log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd, waitCmd, assembleCmd, pinCmd)
}
