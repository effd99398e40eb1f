package ssh

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// PushContent writes r to remotePath on the device through its SFTP subsystem,
// truncating any existing file.
func PushContent(ctx context.Context, client *xssh.Client, r io.Reader, remotePath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sf, err := sftp.NewClient(client)
	if err != nil {
		return 0, fmt.Errorf("sftp client: %w", err)
	}
	defer sf.Close()
	dst, err := sf.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("create remote: %w", err)
	}
	defer dst.Close()
	n, err := io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}
