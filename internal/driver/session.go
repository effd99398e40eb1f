package driver

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/damianoneill/net/v2/cli"
	"github.com/pkg/errors"
	xssh "golang.org/x/crypto/ssh"

	gssh "github.com/3cpo-dev/netcfg/internal/ssh"
)

// promptPattern matches exec and config mode prompts such as "core1#" or "leaf-2(config)#".
// The session tests it against the last line of output only.
const promptPattern = `^[\w\-.:/]+(\([\w\-.]+\))?[>#]\s*$`

var sessionFactory = cli.NewSessionFactory(nil)

// cliErrorMarkers are output fragments that IOS and NX-OS print for rejected commands.
var cliErrorMarkers = []string{
	"% Invalid",
	"% Incomplete",
	"% Ambiguous",
	"% Error",
	"% Permission denied",
	"% Failed",
	"Syntax error while parsing",
	"ERROR:",
}

// CommandError reports a command the device rejected.
type CommandError struct {
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", e.Command, strings.TrimSpace(e.Output))
}

func openCLI(ctx context.Context, t Target, initCmds ...string) (cli.Session, error) {
	cfg, err := t.sshClient().ClientConfig()
	if err != nil {
		return nil, err
	}
	sess, err := sessionFactory.NewSession(ctx, cfg, t.Addr,
		cli.WithPrompt(promptPattern),
		cli.WithCommands(initCmds...),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cli session")
	}
	return sess, nil
}

// run sends one command and returns its output without the echoed command line.
// Any error marker in the output rejects the command.
func run(ctx context.Context, sess cli.Session, command string) (string, error) {
	out, err := send(ctx, sess, command)
	if err != nil {
		return "", err
	}
	if hasErrorMarker(out) {
		return out, &CommandError{Command: command, Output: out}
	}
	return out, nil
}

// show is run for commands that print device text. Configuration bodies carry
// arbitrary descriptions and banners, so only the first line is checked; a
// rejected command reports there.
func show(ctx context.Context, sess cli.Session, command string) (string, error) {
	out, err := send(ctx, sess, command)
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(strings.TrimLeft(out, "\r\n\t "), "\n")
	if hasErrorMarker(first) {
		return out, &CommandError{Command: command, Output: out}
	}
	return out, nil
}

func send(ctx context.Context, sess cli.Session, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := sess.Send(command)
	if err != nil {
		return "", errors.Wrapf(err, "send %q", command)
	}
	return stripEcho(out, command), nil
}

func hasErrorMarker(out string) bool {
	for _, marker := range cliErrorMarkers {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

func stripEcho(out, command string) string {
	out = strings.TrimLeft(out, "\n")
	first, rest, found := strings.Cut(out, "\n")
	if strings.TrimSpace(first) == command {
		if !found {
			return ""
		}
		return rest
	}
	return out
}

// Uploader copies a file onto the device file system.
type Uploader interface {
	Upload(ctx context.Context, name string, content []byte) error
	Close() error
}

// sftpUploader dials its own SSH connection on first use; the CLI session owns a
// separate one with a pty attached.
type sftpUploader struct {
	target Target
	dir    string
	client *xssh.Client
}

func newSFTPUploader(t Target) *sftpUploader {
	return &sftpUploader{target: t, dir: t.option("sftp_dir", "")}
}

func (u *sftpUploader) Upload(ctx context.Context, name string, content []byte) error {
	if u.client == nil {
		client, err := gssh.Dial(ctx, u.target.sshClient())
		if err != nil {
			return errors.Wrap(err, "dial for sftp")
		}
		u.client = client
	}
	remote := name
	if u.dir != "" {
		remote = path.Join(u.dir, name)
	}
	_, err := gssh.PushContent(ctx, u.client, bytes.NewReader(content), remote)
	return err
}

func (u *sftpUploader) Close() error {
	if u.client == nil {
		return nil
	}
	err := u.client.Close()
	u.client = nil
	return err
}
