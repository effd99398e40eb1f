// Package driver talks to network devices: it fetches configurations, stages
// full-replace candidates, reports the device-computed diff and commits or discards it.
package driver

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	xssh "golang.org/x/crypto/ssh"

	gssh "github.com/3cpo-dev/netcfg/internal/ssh"
)

var (
	// ErrUnsupportedPlatform is returned when no driver is registered for a platform.
	ErrUnsupportedPlatform = stderrors.New("unsupported platform")
	// ErrNoCandidate is returned when compare/commit run before a candidate was loaded.
	ErrNoCandidate = stderrors.New("no candidate configuration loaded")
)

// Retrieve selectors accepted by GetConfig.
const (
	RetrieveAll       = "all"
	RetrieveRunning   = "running"
	RetrieveStartup   = "startup"
	RetrieveCandidate = "candidate"
)

// Config is the set of configurations a device reports.
type Config struct {
	Running   string
	Startup   string
	Candidate string
}

// Driver is the device-facing half of a configuration run.
type Driver interface {
	GetConfig(ctx context.Context, retrieve string) (Config, error)
	LoadReplaceCandidate(ctx context.Context, config string) error
	CompareConfig(ctx context.Context) (string, error)
	CommitConfig(ctx context.Context) error
	DiscardConfig(ctx context.Context) error
	Close() error
}

// CheckpointReader is implemented by platforms that can snapshot their complete
// configuration state into a checkpoint file and hand it back.
type CheckpointReader interface {
	GetCheckpointFile(ctx context.Context) (string, error)
}

// Target carries everything needed to open a driver for one host.
type Target struct {
	Name       string
	Platform   string
	Addr       string
	Username   string
	Password   string
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
	Options    map[string]string
}

func (t Target) option(key, def string) string {
	if v, ok := t.Options[key]; ok && v != "" {
		return v
	}
	return def
}

func (t Target) sshClient() *gssh.Client {
	return &gssh.Client{
		Addr:       t.Addr,
		User:       t.Username,
		Password:   t.Password,
		Signer:     t.Signer,
		KnownHosts: t.KnownHosts,
		Timeout:    t.Timeout,
	}
}

// Factory opens a driver for a target.
type Factory func(ctx context.Context, t Target) (Driver, error)

// Registry maps platform names to driver factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry with the built-in platforms.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PlatformIOS, OpenIOS)
	r.Register(PlatformNXOS, OpenNXOS)
	return r
}

func (r *Registry) Register(platform string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[platform] = f
}

// Open connects to the target with the factory registered for its platform.
func (r *Registry) Open(ctx context.Context, t Target) (Driver, error) {
	r.mu.RLock()
	f, ok := r.factories[t.Platform]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedPlatform, "platform %q", t.Platform)
	}
	d, err := f(ctx, t)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s driver for %s", t.Platform, t.Name)
	}
	return d, nil
}

// Platforms lists the registered platform names.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
