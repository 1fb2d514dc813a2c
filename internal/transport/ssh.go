package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"minechat/util"
)

// Forwarder is an SSH gateway that carries TCP connections, as
// implemented by tunnel.Gateway.  Close leaves it reusable: Connect may
// be called again after it.
type Forwarder interface {
	Connect(ctx context.Context) error
	Dial(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
	IsAlive() bool
}

// SSHDialer routes connections through an SSH gateway.  The gateway is
// connected lazily on the first Dial, and connected again on the next
// Dial after it has dropped, so a chat reconnect also repairs it.
type SSHDialer struct {
	tunnel Forwarder
	name   string
	logger *util.Logger

	mu        sync.Mutex
	connected bool
}

// NewSSHDialer creates a dialer that forwards connections through tun.
// name identifies the gateway in logs.
func NewSSHDialer(tun Forwarder, name string, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tunnel: tun, name: name, logger: logger}
}

// connect establishes the tunnel unless it is already up.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.tunnel.IsAlive() {
		return nil
	}
	if d.connected {
		d.logger.Warn("SSH gateway %s dropped, reconnecting", d.name)
		d.tunnel.Close() //nolint:errcheck
		d.connected = false
	}

	d.logger.Verbose("establishing SSH tunnel to %s", d.name)
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}

	d.connected = true
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address through the SSH tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		d.connected = false
		return d.tunnel.Close()
	}
	return nil
}
