package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func newPublicKey(t *testing.T) xssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := xssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	return key
}

func TestHostKeyCallbackEmptyPath(t *testing.T) {
	cb, err := HostKeyCallback("")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if cb != nil {
		t.Fatalf("expected nil callback for empty path")
	}
}

func TestHostKeyCallbackStrict(t *testing.T) {
	dir := t.TempDir()
	kh := filepath.Join(dir, "nested", "known_hosts")
	known := newPublicKey(t)
	if err := EnsureKnownHostsFile(kh); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	line := knownhosts.Line([]string{"switch1.example.net"}, known) + "\n"
	if err := os.WriteFile(kh, []byte(line), 0600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}

	cb, err := HostKeyCallback(kh)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	if err := cb("switch1.example.net:22", addr, known); err != nil {
		t.Fatalf("known key rejected: %v", err)
	}
	if err := cb("switch1.example.net:22", addr, newPublicKey(t)); err == nil {
		t.Fatalf("expected mismatching key to be rejected")
	}
}
