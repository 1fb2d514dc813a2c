package chat

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errs "minechat/internal/errors"
	"minechat/internal/metrics"
	"minechat/internal/retry"
	"minechat/internal/session"
	"minechat/internal/transport"
	"minechat/util"
)

// Config is the session tuple.  It stays the same across reconnects.
type Config struct {
	Host string
	// Port serves the chat stream, and everything else unless
	// WritePort says otherwise.
	Port int
	// WritePort, when set and different from Port, gets its own socket
	// for the handshake, outbound messages and pings.
	WritePort int
	Token     string
	// Output is the transcript path.
	Output string

	PingInterval time.Duration
	Timeout      time.Duration

	// Backoff paces reconnects.  Nil means retry.DefaultBackoff.
	Backoff *retry.Backoff
}

// ReadAddr is the host:port of the chat stream.
func (c *Config) ReadAddr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// WriteAddr is the host:port messages are sent to.
func (c *Config) WriteAddr() string {
	if !c.Split() {
		return c.ReadAddr()
	}
	return util.FormatAddr(c.Host, c.WritePort)
}

// Split reports whether reading and writing use separate sockets.
func (c *Config) Split() bool {
	return c.WritePort != 0 && c.WritePort != c.Port
}

// State is the supervisor's position in its connect loop.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Supervisor owns the connection.  Each attempt opens a fresh session,
// authenticates, then runs the reader, writer, watcher and transcript
// logger as one group.  When any member fails the rest are cancelled
// and awaited, the sockets are closed, and the loop starts over.
type Supervisor struct {
	cfg     Config
	dialer  transport.Dialer
	ch      *Channels
	logger  *util.Logger
	metrics *metrics.Collector

	// OnStateChange, if set, is called on every transition.  It must
	// not block.
	OnStateChange func(State)

	mu    sync.Mutex
	state State
}

// NewSupervisor creates a Supervisor.  It does nothing until Run.
func NewSupervisor(cfg Config, dialer transport.Dialer, ch *Channels, logger *util.Logger, m *metrics.Collector) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		dialer:  dialer,
		ch:      ch,
		logger:  logger,
		metrics: m,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
}

// Run connects and keeps reconnecting until ctx is cancelled, which
// returns nil.  It returns an error only for a rejected token, a host
// that does not resolve on the first attempt, or an exhausted attempt
// budget when the backoff sets one.
func (s *Supervisor) Run(ctx context.Context) error {
	policy := s.cfg.Backoff
	if policy == nil {
		policy = retry.DefaultBackoff()
	}
	delays := policy.Start()

	for attempt := 1; ; attempt++ {
		established, err := s.attempt(ctx, attempt)
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return nil
		}
		s.setState(StateFailed)

		if retry.IsPermanent(err) {
			return errs.Unwrap(err)
		}
		if err == nil {
			err = errs.Lost("session", s.cfg.ReadAddr(), nil)
		}
		s.metrics.RecordError(err.Error())
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		if established {
			delays.Reset()
		}
		delay := delays.Next()
		s.logger.Warn("connection lost: %v", err)
		s.logger.Info("reconnecting to %s in %s (attempt %d)",
			s.cfg.ReadAddr(), delay.Round(time.Millisecond), attempt+1)
		s.metrics.Reconnect()

		s.setState(StateDisconnected)
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// attempt runs one session to completion.  established reports whether
// it got past the handshake.
func (s *Supervisor) attempt(ctx context.Context, n int) (established bool, err error) {
	s.setState(StateConnecting)
	s.ch.Status.Push(ReadStatus(StateInitiated))
	s.ch.Status.Push(WriteStatus(StateInitiated))
	defer func() {
		s.ch.Status.Push(ReadStatus(StateClosed))
		s.ch.Status.Push(WriteStatus(StateClosed))
	}()

	sess, err := s.open(ctx, n)
	if err != nil {
		return false, err
	}
	s.metrics.SessionOpened()
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.logger.Debug("session %s: close: %v", sess.ID, cerr)
		}
		s.metrics.SessionClosed()
		s.logger.Verbose("session %s closed", sess.ID)
	}()

	writer := NewWriter(s.ch, s.cfg.Token, s.cfg.Timeout, s.logger, s.metrics)

	stop := context.AfterFunc(ctx, sess.Interrupt)
	_, err = writer.Handshake(ctx, sess)
	stop()
	if err != nil {
		if errs.Is(err, errs.ErrInvalidToken) {
			return false, retry.Permanent(err)
		}
		return false, err
	}
	s.setState(StateConnected)

	reader := NewReader(s.ch, s.logger)
	watcher := NewWatcher(s.ch, s.cfg.PingInterval, s.cfg.Timeout, s.logger, s.metrics)
	transcript := NewTranscript(s.cfg.Output, s.ch, s.logger)

	g, gctx := errgroup.WithContext(ctx)
	// Members blocked in socket calls do not watch gctx; the deadline
	// wakes them so Wait returns before the sockets are closed.
	defer context.AfterFunc(gctx, sess.Interrupt)()

	g.Go(func() error { return reader.Run(gctx, sess.Read) })
	g.Go(func() error { return writer.Run(gctx, sess.Write) })
	g.Go(func() error { return watcher.Run(gctx, sess) })
	g.Go(func() error { return transcript.Run(gctx) })

	return true, g.Wait()
}

// open dials the read socket, and the write socket when it is separate.
func (s *Supervisor) open(ctx context.Context, n int) (*session.Session, error) {
	id := uuid.NewString()[:8]
	s.metrics.ConnectAttempt()

	readConn, err := s.dial(ctx, n, s.cfg.ReadAddr())
	if err != nil {
		return nil, err
	}
	s.ch.Status.Push(ReadStatus(StateEstablished))

	if !s.cfg.Split() {
		s.ch.Status.Push(WriteStatus(StateEstablished))
		s.logger.Verbose("session %s: connected to %s", id, s.cfg.ReadAddr())
		return session.New(id, readConn, nil, s.metrics), nil
	}

	writeConn, err := s.dial(ctx, n, s.cfg.WriteAddr())
	if err != nil {
		readConn.Close()
		return nil, err
	}
	s.ch.Status.Push(WriteStatus(StateEstablished))
	s.logger.Verbose("session %s: connected to %s (read) and %s (write)",
		id, s.cfg.ReadAddr(), s.cfg.WriteAddr())
	return session.New(id, readConn, writeConn, s.metrics), nil
}

func (s *Supervisor) dial(ctx context.Context, n int, addr string) (net.Conn, error) {
	s.logger.Debug("dialing %s (attempt %d)", addr, n)
	conn, err := s.dialer.Dial(ctx, "tcp", addr)
	if err == nil {
		return conn, nil
	}
	if n == 1 && errs.IsStartupFatal(err) {
		s.logger.Error("cannot connect to %s: %v", addr, err)
		return nil, retry.Permanent(errs.Wrap("dial", addr, err))
	}
	return nil, errs.Lost("dial", addr, err)
}
