package core

import (
	"context"
	"errors"
	"sync"
	"time"

	xssh "golang.org/x/crypto/ssh"

	"github.com/3cpo-dev/netcfg/internal/driver"
	"github.com/3cpo-dev/netcfg/internal/inventory"
)

// ConnectOptions are the fleet-wide SSH settings applied to every target.
type ConnectOptions struct {
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
}

// Connections opens one driver per host on first use and keeps it for the rest
// of the run, so backup and both deploy stages share a session.
type Connections struct {
	registry *driver.Registry
	opts     ConnectOptions

	mu   sync.Mutex
	open map[string]driver.Driver
}

func NewConnections(registry *driver.Registry, opts ConnectOptions) *Connections {
	return &Connections{registry: registry, opts: opts, open: map[string]driver.Driver{}}
}

// Target builds the driver target for a host.
func (c *Connections) Target(h *inventory.Host) driver.Target {
	return driver.Target{
		Name:       h.Name,
		Platform:   h.Platform,
		Addr:       h.Address(),
		Username:   h.Username,
		Password:   h.Password,
		Signer:     c.opts.Signer,
		KnownHosts: c.opts.KnownHosts,
		Timeout:    c.opts.Timeout,
		Options:    h.ConnectionOptions,
	}
}

// Driver returns the open driver for h, connecting if needed.
func (c *Connections) Driver(ctx context.Context, h *inventory.Host) (driver.Driver, error) {
	c.mu.Lock()
	d, ok := c.open[h.Name]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	// Each host is only ever handled by one goroutine per stage, so two opens
	// for the same name cannot race.
	d, err := c.registry.Open(ctx, c.Target(h))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.open[h.Name] = d
	c.mu.Unlock()
	return d, nil
}

// CloseAll closes every open driver.
func (c *Connections) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for name, d := range c.open {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.open, name)
	}
	return errors.Join(errs...)
}
