package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/3cpo-dev/netcfg/internal/driver"
	"github.com/3cpo-dev/netcfg/internal/inventory"
)

var (
	// ErrConfigNotRendered is returned when a host has no rendered configuration
	// at the point a stage needs one.
	ErrConfigNotRendered = errors.New("configuration not rendered")
	// ErrBackupMissing is returned when a host has no backup configuration to
	// write or deploy.
	ErrBackupMissing = errors.New("backup configuration missing")
	// ErrEmptyConfig is returned when a template renders to nothing but whitespace.
	ErrEmptyConfig = errors.New("template rendered an empty configuration")
)

// DeployOptions selects how the deploy stage behaves.
type DeployOptions struct {
	// DryRun stages and compares the candidate, then discards it.
	DryRun bool
	// Diff writes the device diff to the diffs directory.
	Diff bool
	// FromBackup deploys backup/<dev_hostname> instead of the rendered config.
	FromBackup bool
}

func (o *Orchestrator) renderTask(_ context.Context, h *inventory.Host) (Output, error) {
	out, err := o.renderer.Render(h.TemplateFile, h.Attributes())
	if err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(out) == "" {
		return Output{}, fmt.Errorf("%s: %w", h.TemplateFile, ErrEmptyConfig)
	}
	h.RenderedConfig = out
	return Output{Result: out}, nil
}

func (o *Orchestrator) writeTask(backup bool) TaskFunc {
	return func(_ context.Context, h *inventory.Host) (Output, error) {
		dir, content, missing := o.paths.Configs, h.RenderedConfig, ErrConfigNotRendered
		if backup {
			dir, content, missing = o.paths.Backup, h.BackupConfig, ErrBackupMissing
		}
		if content == "" {
			return Output{}, missing
		}
		return writeArtifact(dir, h.DevHostname, content)
	}
}

func (o *Orchestrator) backupTask(ctx context.Context, h *inventory.Host) (Output, error) {
	d, err := o.conns.Driver(ctx, h)
	if err != nil {
		return Output{}, err
	}
	getter := o.retrievers.For(h.Platform)
	cfg, err := getter.Retrieve(ctx, d)
	if err != nil {
		return Output{}, fmt.Errorf("%s: %w", getter.Name(), err)
	}
	h.BackupConfig = cfg
	return Output{Result: cfg}, nil
}

func (o *Orchestrator) deployTask(opts DeployOptions) TaskFunc {
	return func(ctx context.Context, h *inventory.Host) (Output, error) {
		config, err := o.deploySource(h, opts.FromBackup)
		if err != nil {
			return Output{}, err
		}
		d, err := o.conns.Driver(ctx, h)
		if err != nil {
			return Output{}, err
		}
		res, err := driver.Configure(ctx, d, config, opts.DryRun)
		if err != nil {
			return Output{}, err
		}
		h.DiffText = res.Diff
		if opts.Diff {
			if _, err := writeArtifact(o.paths.Diffs, h.DevHostname, res.Diff); err != nil {
				return Output{}, err
			}
		}
		return Output{Diff: res.Diff, Changed: res.Changed}, nil
	}
}

func (o *Orchestrator) deploySource(h *inventory.Host, fromBackup bool) (string, error) {
	if !fromBackup {
		if h.RenderedConfig == "" {
			return "", ErrConfigNotRendered
		}
		return h.RenderedConfig, nil
	}
	b, err := os.ReadFile(filepath.Join(o.paths.Backup, h.DevHostname))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrBackupMissing, filepath.Join(o.paths.Backup, h.DevHostname))
	}
	if err != nil {
		return "", fmt.Errorf("read backup: %w", err)
	}
	h.BackupConfig = string(b)
	return h.BackupConfig, nil
}

// writeArtifact writes content byte-for-byte to dir/name, creating dir if needed.
// The result is changed when the file did not exist or held different bytes.
func writeArtifact(dir, name, content string) (Output, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	prev, err := os.ReadFile(path)
	changed := err != nil || !bytes.Equal(prev, []byte(content))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Output{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Output{Result: path, Changed: changed}, nil
}
