package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"minechat/internal/chat"
	"minechat/internal/metrics"
	"minechat/internal/transport"
	"minechat/util"
)

// ChatMode runs the reconnecting chat pipeline next to a display.  The
// mode ends when the user leaves the display, when ctx is cancelled, or
// when the supervisor gives up.
type ChatMode struct {
	Supervisor *chat.Supervisor
	Display    Display
	Dialer     transport.Dialer
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// Run starts both halves and waits for them.  Leaving the display
// cancels the supervisor; a supervisor error closes the display and is
// returned.
func (m *ChatMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Supervisor.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return m.Display.Run(gctx)
	})

	err := g.Wait()
	if m.Metrics != nil {
		m.Logger.Verbose("session stats: %s", m.Metrics.JSON())
	}
	return err
}
