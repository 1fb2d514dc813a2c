// Package session represents a single connection attempt: the sockets
// opened for it, split into a read capability and a write capability.
//
// Each half has exactly one owner at a time.  The read half is handed to
// the stream reader, the write half is shared by the writer and the
// active liveness probe and is therefore serialised by a mutex.  Only
// the supervisor holds the Session itself and only it may Close it.
package session

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	errs "minechat/internal/errors"
	"minechat/internal/metrics"
)

// ErrPartialSend marks a Send that failed after part of the frame had
// already reached the socket.
var ErrPartialSend = errs.New("frame partially sent")

// Session encapsulates the sockets of one connection attempt.
type Session struct {
	// ID identifies the attempt in logs.
	ID string

	// Read is the inbound chat stream.
	Read *ReadHalf
	// Write carries the handshake, outbound messages and pings.
	Write *WriteHalf
	// Ack is the read side of the write connection: the handshake
	// replies arrive here.  It is the same value as Read unless the
	// session uses separate read and write sockets.
	Ack *ReadHalf

	conns     []net.Conn
	closeOnce sync.Once
	closeErr  error
}

// New binds a session to its sockets.  When writeConn is nil or equal
// to readConn a single socket serves both directions.
func New(id string, readConn, writeConn net.Conn, m *metrics.Collector) *Session {
	s := &Session{ID: id}
	s.Read = newReadHalf(readConn, m)
	s.conns = []net.Conn{readConn}

	if writeConn == nil || writeConn == readConn {
		s.Write = newWriteHalf(readConn, m)
		s.Ack = s.Read
		return s
	}

	s.Write = newWriteHalf(writeConn, m)
	s.Ack = newReadHalf(writeConn, m)
	s.conns = append(s.conns, writeConn)
	return s
}

// Split reports whether the session runs on two separate sockets.
func (s *Session) Split() bool { return s.Ack != s.Read }

// Interrupt unblocks every pending read and write without closing the
// sockets, so goroutines still holding a half can return before Close.
func (s *Session) Interrupt() {
	past := time.Unix(1, 0)
	for _, c := range s.conns {
		c.SetDeadline(past) //nolint:errcheck
	}
}

// Close closes every socket exactly once.  Later calls return the
// result of the first.  Errors from an already-closed socket are
// ignored.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var closeErrs []error
		for _, c := range s.conns {
			if err := c.Close(); err != nil && !errs.IsClosed(err) {
				closeErrs = append(closeErrs, err)
			}
		}
		s.closeErr = errs.Join(closeErrs...)
	})
	return s.closeErr
}

// ── ReadHalf ─────────────────────────────────────────────────────────

// ReadHalf decodes newline-terminated lines from one socket.  It must
// only be read by a single goroutine.
type ReadHalf struct {
	conn     net.Conn
	br       *bufio.Reader
	addr     string
	activity chan struct{}
	metrics  *metrics.Collector
}

func newReadHalf(conn net.Conn, m *metrics.Collector) *ReadHalf {
	return &ReadHalf{
		conn:     conn,
		br:       bufio.NewReader(conn),
		addr:     remoteAddr(conn),
		activity: make(chan struct{}, 1),
		metrics:  m,
	}
}

// ReadLine blocks for the next line and returns it, trailing newline
// included, decoded as UTF-8.  End of stream, a partial final line and
// every I/O fault are reported as a lost connection.
func (r *ReadHalf) ReadLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return "", errs.Lost("read", r.addr, err)
	}
	r.metrics.LineReceived(len(line))

	select {
	case r.activity <- struct{}{}:
	default:
	}
	return strings.ToValidUTF8(line, "�"), nil
}

// Activity fires after a line has been read.  Ticks coalesce: a
// receiver learns that at least one line arrived since it last looked.
func (r *ReadHalf) Activity() <-chan struct{} { return r.activity }

// SetDeadline bounds the next reads; the zero time clears it.
func (r *ReadHalf) SetDeadline(t time.Time) error {
	return r.conn.SetReadDeadline(t)
}

// Interrupt unblocks a pending ReadLine.
func (r *ReadHalf) Interrupt() {
	r.conn.SetReadDeadline(time.Unix(1, 0)) //nolint:errcheck
}

// Addr returns the remote address for logging.
func (r *ReadHalf) Addr() string { return r.addr }

// ── WriteHalf ────────────────────────────────────────────────────────

// WriteHalf serialises writes to one socket.  Each Send hands the whole
// frame to the socket before the lock is released, so concurrent
// senders never interleave partial frames.
type WriteHalf struct {
	mu      sync.Mutex
	conn    net.Conn
	addr    string
	metrics *metrics.Collector
}

func newWriteHalf(conn net.Conn, m *metrics.Collector) *WriteHalf {
	return &WriteHalf{
		conn:    conn,
		addr:    remoteAddr(conn),
		metrics: m,
	}
}

// Send writes p to the socket.  Faults are reported as a lost
// connection, and also match ErrPartialSend when some of p got out.
func (w *WriteHalf) Send(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.conn.Write(p)
	w.metrics.BytesSent(n)
	if err == nil {
		return nil
	}
	if n > 0 {
		err = fmt.Errorf("%w after %d of %d bytes: %w", ErrPartialSend, n, len(p), err)
	}
	return errs.Lost("write", w.addr, err)
}

// SendString is Send for text.
func (w *WriteHalf) SendString(s string) error { return w.Send([]byte(s)) }

// Interrupt unblocks a pending Send.  It does not wait for the lock.
func (w *WriteHalf) Interrupt() {
	w.conn.SetWriteDeadline(time.Unix(1, 0)) //nolint:errcheck
}

// Addr returns the remote address for logging.
func (w *WriteHalf) Addr() string { return w.addr }

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "?"
}
