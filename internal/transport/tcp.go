package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer opens the chat sockets directly.
type TCPDialer struct {
	// Timeout bounds one connect, DNS lookup included.  Zero leaves it
	// to ctx and the OS.
	Timeout time.Duration

	// LocalPort pins the source port (0 = ephemeral).  A port that is
	// already taken fails the dial with a bind error.
	LocalPort int

	// KeepAlive is the TCP keep-alive period; zero uses the OS
	// default and a negative value disables it.
	KeepAlive time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	if d.LocalPort > 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: d.LocalPort}
	}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
