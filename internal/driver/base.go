package driver

import (
	"strings"

	"github.com/damianoneill/net/v2/cli"
)

// base holds the state shared by the CLI-driven platforms.
type base struct {
	sess   cli.Session
	up     Uploader
	fs     string
	loaded bool
}

func (b *base) path(file string) string { return b.fs + file }

func (b *base) Close() error {
	err := b.sess.Close()
	if b.up != nil {
		if uerr := b.up.Close(); err == nil {
			err = uerr
		}
	}
	return err
}

func validRetrieve(retrieve string) bool {
	switch retrieve {
	case RetrieveAll, RetrieveRunning, RetrieveStartup, RetrieveCandidate:
		return true
	}
	return false
}

func wants(retrieve, which string) bool {
	return retrieve == RetrieveAll || retrieve == which
}

// dropLines removes lines starting with any of prefixes and trims blank edges.
func dropLines(text string, prefixes ...string) string {
	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		skip := false
		for _, p := range prefixes {
			if strings.HasPrefix(strings.TrimSpace(line), p) {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, line)
		}
	}
	return strings.Trim(strings.Join(kept, "\n"), "\n") + "\n"
}
