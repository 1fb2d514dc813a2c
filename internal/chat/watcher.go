package chat

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	errs "minechat/internal/errors"
	"minechat/internal/metrics"
	"minechat/internal/queue"
	"minechat/internal/retry"
	"minechat/internal/session"
	"minechat/util"
)

// ping is written raw on the write half, outside message framing.
var ping = []byte("ping")

// Watcher fails the session when the connection goes quiet.
//
// The active probe writes a ping every interval and waits for any line
// to arrive on the write connection.  It never reads the socket itself;
// it watches the activity signal of the half that owns those reads.  The
// passive probe waits on the Liveness queue.  Either probe timing out
// fails the Watcher with a lost connection.
type Watcher struct {
	liveness *queue.Queue[string]
	interval time.Duration
	timeout  time.Duration
	logger   *util.Logger
	metrics  *metrics.Collector
}

// NewWatcher creates a Watcher.  An interval of zero disables the
// active probe; a timeout of zero disables both deadlines.
func NewWatcher(ch *Channels, interval, timeout time.Duration, logger *util.Logger, m *metrics.Collector) *Watcher {
	return &Watcher{
		liveness: ch.Liveness,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("watcher"),
		metrics:  m,
	}
}

// Run probes sess until a probe fails or ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, sess *session.Session) error {
	g, gctx := errgroup.WithContext(ctx)

	// A failed probe must not leave its sibling parked in a socket call.
	stop := context.AfterFunc(gctx, func() {
		sess.Write.Interrupt()
		if sess.Split() {
			sess.Ack.Interrupt()
		}
	})
	defer stop()

	if w.interval > 0 {
		g.Go(func() error { return w.probeActive(gctx, sess) })
	}
	g.Go(func() error { return w.probePassive(gctx, sess.Read.Addr()) })
	if sess.Split() {
		g.Go(func() error { return w.drainAcks(gctx, sess.Ack) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (w *Watcher) probeActive(ctx context.Context, sess *session.Session) error {
	replies := sess.Ack.Activity()
	addr := sess.Write.Addr()

	for {
		// Only a line that arrives after this ping counts as its reply.
		select {
		case <-replies:
		default:
		}

		if err := sess.Write.Send(ping); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		w.metrics.PingSent()

		if err := w.await(ctx, replies); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.metrics.LivenessTimeout()
			w.logger.Error("no reply to ping from %s within %s", addr, w.timeout)
			return errs.Lost("ping", addr, err)
		}
		w.metrics.RecordHealthCheck()

		if err := retry.Sleep(ctx, w.interval); err != nil {
			return err
		}
	}
}

// await blocks for one tick on replies, bounded by the timeout.
func (w *Watcher) await(ctx context.Context, replies <-chan struct{}) error {
	var expired <-chan time.Time
	if w.timeout > 0 {
		t := time.NewTimer(w.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-replies:
		return nil
	case <-expired:
		return errs.ErrTimeout
	}
}

func (w *Watcher) probePassive(ctx context.Context, addr string) error {
	for {
		notice, err := w.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.metrics.LivenessTimeout()
			w.logger.Error("no activity from %s within %s", addr, w.timeout)
			return errs.Lost("watch", addr, errs.ErrTimeout)
		}
		w.logger.Debug("connection is alive: %s", notice)
	}
}

func (w *Watcher) next(ctx context.Context) (string, error) {
	if w.timeout <= 0 {
		return w.liveness.Pop(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.liveness.Pop(tctx)
}

// drainAcks consumes the replies arriving on a separate write socket.
// Nothing else reads that socket once the handshake is done, and each
// line it decodes ticks the activity signal the active probe waits on.
func (w *Watcher) drainAcks(ctx context.Context, ack *session.ReadHalf) error {
	for {
		line, err := ack.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		w.logger.Debug("write connection replied %q", line)
	}
}
