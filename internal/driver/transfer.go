package driver

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/damianoneill/net/v2/cli"
	"github.com/pkg/errors"
)

// checksum describes how a platform reports the MD5 of a file on its flash.
type checksum struct {
	command func(devicePath string) string
	pattern *regexp.Regexp
}

// transferVerified uploads content and confirms the device sees the same bytes.
// A mismatching copy is deleted again with the platform's delete command.
func transferVerified(ctx context.Context, up Uploader, sess cli.Session, name, devicePath string,
	content []byte, sum checksum, deleteCmd string) error {
	local := md5Hex(content)

	if err := up.Upload(ctx, name, content); err != nil {
		return errors.Wrap(err, "upload candidate")
	}

	out, err := run(ctx, sess, sum.command(devicePath))
	if err != nil {
		return errors.Wrap(err, "calculate remote checksum")
	}
	m := sum.pattern.FindStringSubmatch(out)
	if m == nil {
		return errors.Errorf("no checksum reported for %s", devicePath)
	}
	if !strings.EqualFold(m[1], local) {
		_, _ = run(ctx, sess, deleteCmd)
		return errors.Errorf("checksum mismatch for %s: expected %s, got %s", devicePath, local, m[1])
	}
	return nil
}

func md5Hex(b []byte) string {
	h := md5.Sum(b)
	return hex.EncodeToString(h[:])
}
