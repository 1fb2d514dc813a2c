// Package transport opens the sockets the chat supervisor runs its
// sessions over: plain TCP, or TCP carried through an SSH gateway.
// What flows over a socket is the chat package's business.
package transport

import (
	"context"
	"net"
)

// Dialer is shared by every connection attempt of one process; the
// supervisor calls Dial once per socket, twice when ports are split.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases state kept between dials, such as an SSH client.
	// It is a no-op for plain TCP.
	Close() error
}
