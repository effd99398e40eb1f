package driver

import (
	"context"
	"regexp"
	"strings"

	"github.com/damianoneill/net/v2/cli"
	"github.com/pkg/errors"
)

const (
	PlatformIOS      = "ios"
	iosCandidateFile = "candidate_config.txt"
	iosRunningConfig = "system:running-config"
)

var iosChecksum = checksum{
	command: func(p string) string { return "verify /md5 " + p },
	pattern: regexp.MustCompile(`=\s*([0-9a-fA-F]{32})`),
}

// IOS drives Cisco IOS and IOS-XE devices. Candidates are staged on flash and
// applied with configure replace.
type IOS struct {
	base
}

// OpenIOS connects to an IOS device. The file_system connection option selects
// where candidates are staged (default "flash:").
func OpenIOS(ctx context.Context, t Target) (Driver, error) {
	sess, err := openCLI(ctx, t, "terminal length 0", "terminal width 511")
	if err != nil {
		return nil, err
	}
	return NewIOS(sess, newSFTPUploader(t), t.option("file_system", "flash:")), nil
}

func NewIOS(sess cli.Session, up Uploader, fileSystem string) *IOS {
	return &IOS{base{sess: sess, up: up, fs: fileSystem}}
}

func (d *IOS) GetConfig(ctx context.Context, retrieve string) (Config, error) {
	var cfg Config
	if !validRetrieve(retrieve) {
		return cfg, errors.Errorf("invalid retrieve option %q", retrieve)
	}
	if wants(retrieve, RetrieveRunning) {
		out, err := show(ctx, d.sess, "show running-config")
		if err != nil {
			return cfg, err
		}
		cfg.Running = cleanIOSConfig(out)
	}
	if wants(retrieve, RetrieveStartup) {
		out, err := show(ctx, d.sess, "show startup-config")
		if err != nil {
			return cfg, err
		}
		cfg.Startup = cleanIOSConfig(out)
	}
	if wants(retrieve, RetrieveCandidate) && d.loaded {
		out, err := show(ctx, d.sess, "more "+d.path(iosCandidateFile))
		if err != nil {
			return cfg, err
		}
		cfg.Candidate = out
	}
	return cfg, nil
}

func cleanIOSConfig(out string) string {
	return dropLines(out, "Building configuration", "Current configuration :", "Using ")
}

func (d *IOS) LoadReplaceCandidate(ctx context.Context, config string) error {
	p := d.path(iosCandidateFile)
	if err := transferVerified(ctx, d.up, d.sess, iosCandidateFile, p, []byte(config), iosChecksum, "delete /force "+p); err != nil {
		return err
	}
	d.loaded = true
	return nil
}

func (d *IOS) CompareConfig(ctx context.Context) (string, error) {
	if !d.loaded {
		return "", ErrNoCandidate
	}
	out, err := show(ctx, d.sess, "show archive config differences "+iosRunningConfig+" "+d.path(iosCandidateFile))
	if err != nil {
		return "", err
	}
	return normalizeIOSDiff(out), nil
}

func normalizeIOSDiff(out string) string {
	if strings.Contains(out, "No changes were found") {
		return ""
	}
	diff := strings.TrimSpace(dropLines(out, "!Contextual Config Diffs"))
	if diff == "" {
		return ""
	}
	return diff + "\n"
}

func (d *IOS) CommitConfig(ctx context.Context) error {
	if !d.loaded {
		return ErrNoCandidate
	}
	cmd := "configure replace " + d.path(iosCandidateFile) + " force revert trigger error"
	out, err := run(ctx, d.sess, cmd)
	if err != nil {
		return err
	}
	if strings.Contains(out, "Rollback aborted") || strings.Contains(out, "Failed to apply") {
		return &CommandError{Command: cmd, Output: out}
	}
	d.loaded = false
	if _, err := run(ctx, d.sess, "write memory"); err != nil {
		return errors.Wrap(err, "save startup configuration")
	}
	return nil
}

func (d *IOS) DiscardConfig(ctx context.Context) error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	_, err := run(ctx, d.sess, "delete /force "+d.path(iosCandidateFile))
	return err
}
