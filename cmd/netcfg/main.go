package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/netcfg/internal/core"
	"github.com/3cpo-dev/netcfg/internal/telemetry"
)

var (
	version   = "0.3.0"
	commit    = ""
	buildDate = ""
)

// Create the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netcfg",
		Short: "netcfg: render, back up and deploy network device configurations",
		Long: "netcfg renders per-device configurations from templates, backs up the running " +
			"configuration, and replaces it on the device after a dry-run diff. " +
			"Every stage runs across the whole inventory and the run stops at the first stage with a failed host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "config file (default ./config.yaml or $XDG_CONFIG_HOME/netcfg/config.yaml)")
	cmd.PersistentFlags().StringSlice("host", nil, "only act on these inventory hosts")
	cmd.PersistentFlags().StringSlice("platform", nil, "only act on hosts of these platforms")
	cmd.PersistentFlags().StringSlice("group", nil, "only act on members of these groups")

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		level, err := zerolog.ParseLevel(levelStr)
		if err != nil || levelStr == "" {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newDeployCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newInventoryCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netcfg %s (%s) %s\n", version, commit, buildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "platforms: %s\n", strings.Join(newRegistry().Platforms(), ", "))
		},
	}
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Main entry point
func main() {
	setupLogger()
	telemetry.Version = version
	root := newRootCmd()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		var serr *core.StageError
		if errors.As(err, &serr) {
			log.Error().Str("stage", string(serr.Stage)).Strs("hosts", serr.Result.FailedHosts()).Msg("run aborted")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
