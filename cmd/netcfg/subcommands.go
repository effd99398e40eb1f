package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/netcfg/internal/core"
	"github.com/3cpo-dev/netcfg/internal/driver"
	"github.com/3cpo-dev/netcfg/internal/inventory"
	"github.com/3cpo-dev/netcfg/internal/plan"
	gssh "github.com/3cpo-dev/netcfg/internal/ssh"
	"github.com/3cpo-dev/netcfg/internal/telemetry"
)

// newRegistry is swapped in tests to avoid real devices.
var newRegistry = driver.DefaultRegistry

// session is everything a pipeline command needs, built from flags and config.
type session struct {
	cfg   *core.Config
	inv   *inventory.Inventory
	store *core.Store
	orch  *core.Orchestrator
}

func loadConfig(cmd *cobra.Command) (*core.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	return core.LoadConfig(cfgPath)
}

func loadInventory(cmd *cobra.Command, cfg *core.Config) (*inventory.Inventory, error) {
	inv, err := inventory.Load(cfg.Inventory.HostsFile, cfg.Inventory.GroupsFile, cfg.Inventory.DefaultsFile)
	if err != nil {
		return nil, err
	}
	inv.SetDefaultCredentials(cfg.Credentials.Username, cfg.Credentials.Password)
	var f inventory.Filter
	f.Names, _ = cmd.Flags().GetStringSlice("host")
	f.Platforms, _ = cmd.Flags().GetStringSlice("platform")
	f.Groups, _ = cmd.Flags().GetStringSlice("group")
	inv = inv.Filter(f)
	if inv.Len() == 0 {
		return nil, errors.New("inventory: no hosts selected")
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	inv, err := loadInventory(cmd, cfg)
	if err != nil {
		return nil, err
	}

	connect := core.ConnectOptions{Timeout: cfg.SSHTimeout()}
	if connect.KnownHosts, err = gssh.HostKeyCallback(cfg.SSH.KnownHosts); err != nil {
		return nil, err
	}
	if cfg.SSH.KnownHosts == "" {
		log.Warn().Msg("ssh.known_hosts not set, device host keys are not verified")
	}
	if cfg.SSH.KeyPath != "" {
		if connect.Signer, err = gssh.LoadPrivateKeySigner(cfg.SSH.KeyPath); err != nil {
			return nil, err
		}
	}

	s := &session{cfg: cfg, inv: inv}
	if cfg.Store.Path != "" {
		if s.store, err = core.NewStore(cfg.Store.Path); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := s.store.Ping(cmd.Context()); err != nil {
			_ = s.store.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	collector := telemetry.InitGlobal(cfg.Telemetry.Enabled, cfg.Telemetry.OTLPEndpoint)

	s.orch = core.New(inv, core.Deps{
		Executor:  core.NewParallelExecutor(cfg.Runner.NumWorkers),
		Registry:  newRegistry(),
		Connect:   connect,
		Paths:     cfg.Paths,
		Out:       cmd.OutOrStdout(),
		Store:     s.store,
		Telemetry: collector,
	})
	return s, nil
}

func (s *session) Close() {
	if err := telemetry.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("flush telemetry")
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// pipelineCmd builds a command that runs the steps returned by steps.
func pipelineCmd(use, short string, steps func(cmd *cobra.Command, o *core.Orchestrator) []core.Step) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.orch.Execute(cmd.Context(), use, steps(cmd, s.orch)...)
		},
	}
}

// Run the whole pipeline
func newRunCmd() *cobra.Command {
	return pipelineCmd("run", "Render, back up, dry-run and commit configurations on every host",
		func(_ *cobra.Command, o *core.Orchestrator) []core.Step { return o.Pipeline() })
}

// Render and write configs only
func newRenderCmd() *cobra.Command {
	return pipelineCmd("render", "Render templates and write configs/ without touching devices",
		func(_ *cobra.Command, o *core.Orchestrator) []core.Step {
			return []core.Step{o.RenderStep(), o.WriteStep(false)}
		})
}

// Fetch and write backups only
func newBackupCmd() *cobra.Command {
	return pipelineCmd("backup", "Fetch the current configuration of every host into backup/",
		func(_ *cobra.Command, o *core.Orchestrator) []core.Step {
			return []core.Step{o.BackupStep(), o.WriteStep(true)}
		})
}

// Deploy rendered configs or a previous backup
func newDeployCmd() *cobra.Command {
	cmd := pipelineCmd("deploy", "Replace device configurations with rendered configs or backups",
		func(cmd *cobra.Command, o *core.Orchestrator) []core.Step {
			var opts core.DeployOptions
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.Diff, _ = cmd.Flags().GetBool("diff")
			opts.FromBackup, _ = cmd.Flags().GetBool("from-backup")
			if opts.FromBackup {
				return []core.Step{o.DeployStep(opts)}
			}
			return []core.Step{o.RenderStep(), o.DeployStep(opts)}
		})
	cmd.Flags().Bool("dry-run", false, "compare and discard instead of committing")
	cmd.Flags().Bool("diff", false, "write the device diff to diffs/")
	cmd.Flags().Bool("from-backup", false, "deploy backup/<dev_hostname> instead of the rendered template")
	return cmd
}

// Offline diff of backup/ against configs/
func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [dev_hostname...]",
		Short: "Show a unified diff between backup/ and configs/ without connecting to devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			diffs, err := plan.Compare(cfg.Paths.Backup, cfg.Paths.Configs, args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range diffs {
				switch {
				case d.Missing != "":
					fmt.Fprintf(out, "%s: %s\n", d.Host, d.Missing)
				case !d.Changed():
					fmt.Fprintf(out, "%s: no changes\n", d.Host)
				default:
					fmt.Fprint(out, d.Diff)
				}
			}
			return nil
		},
	}
}

// List the resolved inventory
func newInventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "List the resolved inventory hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			inv, err := loadInventory(cmd, cfg)
			if err != nil {
				return err
			}
			for _, h := range inv.Hosts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\t%s\n",
					h.Name, h.Address(), h.Platform, h.DevHostname, h.TemplateFile, h.Option("file_system", "default"))
			}
			return nil
		},
	}
}

// Show recorded runs
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or the host results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return errors.New("history: store.path is not configured")
			}
			store, err := core.NewStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("history: %w", err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("history: invalid run id %q", args[0])
				}
				recs, err := store.StageResults(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, r := range recs {
					status := "ok"
					if r.Failed {
						status = "failed: " + r.Error
					}
					fmt.Fprintf(out, "%s\t%s\tchanged=%t\t%s\t%s\n", r.Stage, r.Host, r.Changed, r.Duration, status)
				}
				return nil
			}

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%d hosts\t%s\n", r.ID, r.StartedAt, r.Command, r.State, r.Hosts, r.FailedStage)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to list")
	return cmd
}

const defaultConfig = `inventory:
  hosts_file: inventory/hosts.yaml
  groups_file: ""
  defaults_file: ""
runner:
  num_workers: 20
paths:
  templates: templates
  configs: configs
  backup: backup
  diffs: diffs
ssh:
  known_hosts: %s
  key_path: ""
  timeout_seconds: 30
store:
  path: %s
telemetry:
  enabled: false
  otlp_endpoint: ""
`

// Write a starter config and known_hosts file
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default config and known_hosts file if missing. Run this the first time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfgPath = core.ResolveConfigPath(cfgPath)
			dir := filepath.Dir(cfgPath)
			knownHosts := filepath.Join(dir, "known_hosts")
			out := cmd.OutOrStdout()

			if err := gssh.EnsureKnownHostsFile(knownHosts); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Fprintf(out, "config %s already exists\n", cfgPath)
				return nil
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			content := fmt.Sprintf(defaultConfig, strconv.Quote(knownHosts), strconv.Quote(filepath.Join(dir, "history.db")))
			if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", cfgPath)
			fmt.Fprintf(out, "put %s and %s in %s\n", core.EnvUsername, core.EnvPassword, filepath.Join(dir, "secrets.env"))
			fmt.Fprintf(out, "add device host keys to %s (ssh-keyscan) before the first run\n", knownHosts)
			return nil
		},
	}
}
