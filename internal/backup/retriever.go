// Package backup selects how a device's current configuration is captured.
package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/3cpo-dev/netcfg/internal/driver"
)

// ErrCheckpointUnsupported is returned when a driver cannot produce checkpoint files.
var ErrCheckpointUnsupported = errors.New("driver does not support checkpoint files")

// ConfigRetriever fetches the configuration text kept as a host's backup.
type ConfigRetriever interface {
	Name() string
	Retrieve(ctx context.Context, d driver.Driver) (string, error)
}

// StandardGetter asks the driver for its running configuration.
type StandardGetter struct{}

func (StandardGetter) Name() string { return "running-config" }

func (StandardGetter) Retrieve(ctx context.Context, d driver.Driver) (string, error) {
	cfg, err := d.GetConfig(ctx, driver.RetrieveRunning)
	if err != nil {
		return "", fmt.Errorf("get running config: %w", err)
	}
	return cfg.Running, nil
}

// CheckpointFileGetter snapshots the device into a vendor checkpoint file. NX-OS
// needs it because its running-config output cannot be replayed as a full replace.
type CheckpointFileGetter struct{}

func (CheckpointFileGetter) Name() string { return "checkpoint-file" }

func (CheckpointFileGetter) Retrieve(ctx context.Context, d driver.Driver) (string, error) {
	cr, ok := d.(driver.CheckpointReader)
	if !ok {
		return "", ErrCheckpointUnsupported
	}
	out, err := cr.GetCheckpointFile(ctx)
	if err != nil {
		return "", fmt.Errorf("get checkpoint file: %w", err)
	}
	return out, nil
}

// Table maps platforms to retrievers; platforms without an entry use the fallback.
type Table struct {
	byPlatform map[string]ConfigRetriever
	fallback   ConfigRetriever
}

// DefaultTable routes nxos to checkpoint files and everything else to the running config.
func DefaultTable() *Table {
	return &Table{
		byPlatform: map[string]ConfigRetriever{
			driver.PlatformNXOS: CheckpointFileGetter{},
		},
		fallback: StandardGetter{},
	}
}

func (t *Table) Set(platform string, r ConfigRetriever) {
	t.byPlatform[platform] = r
}

func (t *Table) For(platform string) ConfigRetriever {
	if r, ok := t.byPlatform[platform]; ok {
		return r
	}
	return t.fallback
}
