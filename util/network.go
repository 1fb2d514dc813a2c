package util

import (
	"net"
	"strconv"
)

// FormatAddr joins host and port for dialing, bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ClosedAddr returns a loopback address nobody listens on, for
// exercising connection-refused paths.
func ClosedAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	return addr, ln.Close()
}
