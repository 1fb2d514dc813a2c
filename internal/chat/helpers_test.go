package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"minechat/internal/queue"
	"minechat/internal/retry"
	"minechat/internal/session"
	"minechat/util"
)

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

// pipeSession binds a single-socket session to one end of an in-memory
// pipe and returns the other end for the test to play server.
func pipeSession(t *testing.T) (*session.Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	sess := session.New("test", client, nil, nil)
	t.Cleanup(func() {
		server.Close()
		sess.Close()
	})
	return sess, server
}

func popWithin[T any](t *testing.T, q *queue.Queue[T], d time.Duration) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	v, err := q.Pop(ctx)
	require.NoError(t, err, "queue stayed empty for %s", d)
	return v
}

// feed pushes a liveness notice every period until ctx is done.
func feed(ctx context.Context, q *queue.Queue[string], period time.Duration) {
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				q.Push("test notice")
			}
		}
	}()
}

// ── fake chat server ─────────────────────────────────────────────────

type fakeServer struct {
	ln       net.Listener
	accepted atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
}

// newFakeServer listens on loopback and runs handle in its own
// goroutine for every accepted connection.  Connections are closed when
// the test ends.
func newFakeServer(t *testing.T, handle func(c net.Conn)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			s.accepted.Add(1)
			s.mu.Lock()
			s.conns = append(s.conns, c)
			s.mu.Unlock()
			go handle(c)
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			c.Close()
		}
	})
	return s
}

func (s *fakeServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// handOver returns a handler that passes each connection to the test.
func handOver(conns chan<- net.Conn) func(net.Conn) {
	return func(c net.Conn) { conns <- c }
}

func recvConn(t *testing.T, conns <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no connection from the client")
		return nil
	}
}

func testConfig(t *testing.T, port int) Config {
	return Config{
		Host:    "127.0.0.1",
		Port:    port,
		Output:  filepath.Join(t.TempDir(), "chat-log.txt"),
		Timeout: 5 * time.Second,
		Backoff: &retry.Backoff{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

// runSupervisor starts sup in the background.  The returned stop
// cancels it and reports what Run returned.
func runSupervisor(t *testing.T, sup *Supervisor) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	var once sync.Once
	var result error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				result = errors.New("supervisor did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

// dialFunc adapts a function to transport.Dialer.
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

func (f dialFunc) Close() error { return nil }
