package driver

import (
	"context"
	"regexp"
	"strings"

	"github.com/damianoneill/net/v2/cli"
	"github.com/pkg/errors"
)

const (
	PlatformNXOS       = "nxos"
	nxosCandidateFile  = "candidate_config.txt"
	nxosRollbackFile   = "rollback_config.txt"
	nxosCheckpointFile = "temp_cp_file_from_netcfg"

	nxosRollbackOK = "Rollback completed successfully"
)

var nxosChecksum = checksum{
	command: func(p string) string { return "show file " + p + " md5sum" },
	pattern: regexp.MustCompile(`\b([0-9a-fA-F]{32})\b`),
}

// NXOS drives Cisco NX-OS switches. Diffs and commits go through the checkpoint
// and rollback machinery rather than configure replace.
type NXOS struct {
	base
}

// OpenNXOS connects to an NX-OS device. The file_system connection option selects
// where candidates and checkpoints are written (default "bootflash:").
func OpenNXOS(ctx context.Context, t Target) (Driver, error) {
	sess, err := openCLI(ctx, t, "terminal length 0", "terminal width 511")
	if err != nil {
		return nil, err
	}
	return NewNXOS(sess, newSFTPUploader(t), t.option("file_system", "bootflash:")), nil
}

func NewNXOS(sess cli.Session, up Uploader, fileSystem string) *NXOS {
	return &NXOS{base{sess: sess, up: up, fs: fileSystem}}
}

func (d *NXOS) GetConfig(ctx context.Context, retrieve string) (Config, error) {
	var cfg Config
	if !validRetrieve(retrieve) {
		return cfg, errors.Errorf("invalid retrieve option %q", retrieve)
	}
	if wants(retrieve, RetrieveRunning) {
		out, err := show(ctx, d.sess, "show running-config")
		if err != nil {
			return cfg, err
		}
		cfg.Running = cleanNXOSConfig(out)
	}
	if wants(retrieve, RetrieveStartup) {
		out, err := show(ctx, d.sess, "show startup-config")
		if err != nil {
			return cfg, err
		}
		cfg.Startup = cleanNXOSConfig(out)
	}
	if wants(retrieve, RetrieveCandidate) && d.loaded {
		out, err := show(ctx, d.sess, "show file "+d.path(nxosCandidateFile))
		if err != nil {
			return cfg, err
		}
		cfg.Candidate = out
	}
	return cfg, nil
}

func cleanNXOSConfig(out string) string {
	return dropLines(out, "!Command:", "!Time:", "!Running configuration last done at:", "!Startup config saved at:")
}

// GetCheckpointFile writes a temporary checkpoint, reads it back verbatim and
// removes it from the device.
func (d *NXOS) GetCheckpointFile(ctx context.Context) (string, error) {
	p := d.path(nxosCheckpointFile)
	if _, err := run(ctx, d.sess, "checkpoint file "+p); err != nil {
		return "", errors.Wrap(err, "create checkpoint")
	}
	defer func() { _, _ = run(context.Background(), d.sess, "delete "+p+" no-prompt") }()

	out, err := show(ctx, d.sess, "show file "+p)
	if err != nil {
		return "", errors.Wrap(err, "read checkpoint")
	}
	return out, nil
}

func (d *NXOS) LoadReplaceCandidate(ctx context.Context, config string) error {
	p := d.path(nxosCandidateFile)
	if err := transferVerified(ctx, d.up, d.sess, nxosCandidateFile, p, []byte(config), nxosChecksum, "delete "+p+" no-prompt"); err != nil {
		return err
	}
	d.loaded = true
	return nil
}

func (d *NXOS) CompareConfig(ctx context.Context) (string, error) {
	if !d.loaded {
		return "", ErrNoCandidate
	}
	rb := d.path(nxosRollbackFile)
	_, _ = run(ctx, d.sess, "delete "+rb+" no-prompt")
	if _, err := run(ctx, d.sess, "checkpoint file "+rb); err != nil {
		return "", errors.Wrap(err, "checkpoint running configuration")
	}
	out, err := show(ctx, d.sess, "show diff rollback-patch file "+rb+" file "+d.path(nxosCandidateFile))
	if err != nil {
		return "", err
	}
	return normalizeNXOSDiff(out), nil
}

func normalizeNXOSDiff(out string) string {
	if strings.Contains(out, "Rollback Patch is Empty") {
		return ""
	}
	if _, after, found := strings.Cut(out, "#Generating Rollback Patch"); found {
		out = after
	}
	diff := strings.TrimSpace(out)
	if diff == "" {
		return ""
	}
	return diff + "\n"
}

func (d *NXOS) CommitConfig(ctx context.Context) error {
	if !d.loaded {
		return ErrNoCandidate
	}
	cmd := "rollback running-config file " + d.path(nxosCandidateFile)
	out, err := run(ctx, d.sess, cmd)
	if err != nil {
		return err
	}
	if !strings.Contains(out, nxosRollbackOK) {
		return &CommandError{Command: cmd, Output: out}
	}
	if _, err := run(ctx, d.sess, "copy running-config startup-config"); err != nil {
		return errors.Wrap(err, "save startup configuration")
	}
	return d.cleanup(ctx)
}

func (d *NXOS) DiscardConfig(ctx context.Context) error {
	if !d.loaded {
		return nil
	}
	return d.cleanup(ctx)
}

func (d *NXOS) cleanup(ctx context.Context) error {
	d.loaded = false
	_, _ = run(ctx, d.sess, "delete "+d.path(nxosRollbackFile)+" no-prompt")
	_, err := run(ctx, d.sess, "delete "+d.path(nxosCandidateFile)+" no-prompt")
	return err
}
