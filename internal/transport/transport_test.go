package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	errs "minechat/internal/errors"
	"minechat/util"
)

// TestTCPDialer_Connect verifies that TCPDialer can reach a local
// TCP server and exchange data.
func TestTCPDialer_Connect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: accept, send greeting, close.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello from server\n")) //nolint:errcheck
	}()

	d := &TCPDialer{Timeout: 2 * time.Second}
	ctx := context.Background()

	conn, err := d.Dial(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "hello from server\n" {
		t.Errorf("got %q, want %q", got, "hello from server\n")
	}
}

// TestTCPDialer_ContextCancel verifies that a cancelled context stops the dial.
func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := d.Dial(ctx, "tcp", "127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

// TestTCPDialer_Close verifies Close is a no-op and returns nil.
func TestTCPDialer_Close(t *testing.T) {
	d := &TCPDialer{}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestTCPDialer_LocalPortInUse verifies that a taken source port is
// reported as a bind failure.
func TestTCPDialer_LocalPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	taken := ln.Addr().(*net.TCPAddr).Port

	d := &TCPDialer{Timeout: time.Second, LocalPort: taken}
	_, err = d.Dial(context.Background(), "tcp", ln.Addr().String())
	if err == nil {
		t.Fatal("expected error binding a port that is in use")
	}
	if !errs.IsStartupFatal(err) {
		t.Errorf("bind failure should be startup-fatal: %v", err)
	}
}

// ── SSHDialer ────────────────────────────────────────────────────────

// fakeTunnel dials directly and lets tests kill it.
type fakeTunnel struct {
	mu       sync.Mutex
	alive    bool
	connects int
	fail     error
}

func (f *fakeTunnel) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.fail != nil {
		return f.fail
	}
	f.alive = true
	return nil
}

func (f *fakeTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

func (f *fakeTunnel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	return nil
}

func (f *fakeTunnel) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTunnel) drop() {
	f.mu.Lock()
	f.alive = false
	f.mu.Unlock()
}

func listenAndDiscard(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().String()
}

func TestSSHDialer_ReconnectsDroppedTunnel(t *testing.T) {
	addr := listenAndDiscard(t)
	tun := &fakeTunnel{}
	d := NewSSHDialer(tun, "gw:22", quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		conn, err := d.Dial(ctx, "tcp", addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.Close()
	}
	if tun.connects != 1 {
		t.Fatalf("connects = %d, want 1 while the tunnel is alive", tun.connects)
	}

	tun.drop()
	conn, err := d.Dial(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("dial after drop: %v", err)
	}
	conn.Close()
	if tun.connects != 2 {
		t.Fatalf("connects = %d, want 2 after the gateway dropped", tun.connects)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tun.IsAlive() {
		t.Error("Close should tear the tunnel down")
	}
}

func TestSSHDialer_ConnectFailure(t *testing.T) {
	cause := errors.New("gateway unreachable")
	d := NewSSHDialer(&fakeTunnel{fail: cause}, "gw:22", quietLogger())

	_, err := d.Dial(context.Background(), "tcp", "127.0.0.1:1")
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close without a tunnel: %v", err)
	}
}

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}
