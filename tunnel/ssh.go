// Package tunnel reaches the chat server through an SSH gateway, the
// equivalent of `ssh -W host:port`.  One ssh.Client is shared by every
// chat socket; each socket is a direct-tcpip channel on it.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	errs "minechat/internal/errors"
	"minechat/util"
)

// Config holds everything needed to log in to an SSH gateway.
type Config struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive@openssh.com requests.
	// A gateway that stops answering is closed, so the next Dial sees
	// a dead tunnel instead of hanging.  Zero disables keepalives.
	KeepAlive time.Duration
}

// Gateway wraps one ssh.Client.  Every chat socket
// becomes a direct-tcpip channel on that client.
type Gateway struct {
	config *Config
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool

	auth []ssh.AuthMethod // built on first Connect, reused on reconnect
}

// NewGateway creates a tunnel that is ready to [Gateway.Connect].
func NewGateway(cfg *Config, logger *util.Logger) *Gateway {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &Gateway{config: cfg, logger: logger.Named("ssh")}
}

// Addr is the gateway's host:port.
func (g *Gateway) Addr() string {
	return util.FormatAddr(g.config.Host, g.config.Port)
}

// Connect dials the gateway and completes the SSH handshake.
func (g *Gateway) Connect(ctx context.Context) error {
	authMethods, err := g.authMethods()
	if err != nil {
		return errs.WrapSSH("auth", g.config.Host, g.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(g.config)
	if err != nil {
		return errs.WrapSSH("hostkey", g.config.Host, g.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            g.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         g.config.ConnTimeout,
	}

	addr := g.Addr()
	g.logger.Debug("connecting to %s as %s", addr, g.config.User)

	dialer := net.Dialer{Timeout: g.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errs.Wrap("dial", addr, err)
	}

	// The handshake itself is not context-aware.
	stop := context.AfterFunc(ctx, func() { tcpConn.SetDeadline(time.Unix(1, 0)) }) //nolint:errcheck
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	stop()
	if err != nil {
		tcpConn.Close()
		return errs.WrapSSH("handshake", g.config.Host, g.config.Port, err)
	}
	tcpConn.SetDeadline(time.Time{}) //nolint:errcheck

	client := ssh.NewClient(sshConn, chans, reqs)

	g.mu.Lock()
	g.client = client
	g.alive = true
	g.mu.Unlock()

	done := make(chan struct{})
	go g.monitor(client, done)
	if g.config.KeepAlive > 0 {
		go g.keepalive(client, done)
	}

	g.logger.Verbose("SSH gateway %s connected", addr)
	return nil
}

func (g *Gateway) authMethods() ([]ssh.AuthMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.auth == nil {
		methods, err := BuildAuthMethods(g.config)
		if err != nil {
			return nil, err
		}
		g.auth = methods
	}
	return g.auth, nil
}

// Dial opens address from the gateway's side.
func (g *Gateway) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	g.mu.RLock()
	client := g.client
	alive := g.alive
	g.mu.RUnlock()

	if !alive || client == nil {
		return nil, errs.ErrNotConnected
	}

	g.logger.Debug("dialing %s %s via %s", network, address, g.Addr())
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Close shuts down the SSH connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.alive = false
	if g.client != nil {
		err := g.client.Close()
		g.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the gateway is still connected.
func (g *Gateway) IsAlive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.alive
}

// monitor blocks until client closes and marks the tunnel dead if
// client is still the current one.
func (g *Gateway) monitor(client *ssh.Client, done chan struct{}) {
	err := client.Wait()
	close(done)

	g.mu.Lock()
	if g.client == client {
		g.alive = false
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Debug("SSH gateway closed: %v", err)
	} else {
		g.logger.Debug("SSH gateway closed")
	}
}

// keepalive probes the gateway until client closes.  A failed probe
// closes client, which the monitor reports.
func (g *Gateway) keepalive(client *ssh.Client, done <-chan struct{}) {
	ticker := time.NewTicker(g.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				g.logger.Error("SSH keepalive to %s failed: %v", g.Addr(), err)
				client.Close()
				return
			}
			g.logger.Debug("SSH keepalive OK")
		}
	}
}
