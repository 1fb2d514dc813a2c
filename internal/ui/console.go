// Package ui holds the display surfaces that sit on the far side of the
// chat queues: a plain line console and an interactive terminal UI.
// Both drain Inbound and Status and feed Outbound; neither ever touches
// a socket.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"minechat/internal/chat"
	"minechat/util"
)

// Console prints chat lines to out and sends every line typed on in.
// It suits pipes and terminals where the full UI is unwanted.
type Console struct {
	ch     *chat.Channels
	in     io.Reader
	out    io.Writer
	logger *util.Logger

	mu sync.Mutex // serialises writes to out
}

// NewConsole creates a Console.  in may be nil for a read-only session.
func NewConsole(ch *chat.Channels, in io.Reader, out io.Writer, logger *util.Logger) *Console {
	return &Console{ch: ch, in: in, out: out, logger: logger}
}

// Run displays until ctx is cancelled.  End of input stops sending but
// not displaying.
func (c *Console) Run(ctx context.Context) error {
	if c.in != nil {
		// A blocked read on stdin cannot be interrupted; the goroutine
		// ends with the process.
		go c.readInput()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.printInbound(gctx) })
	g.Go(func() error { return c.printStatus(gctx) })
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Console) printInbound(ctx context.Context) error {
	for {
		line, err := c.ch.Inbound.Pop(ctx)
		if err != nil {
			return err
		}
		c.print(line)
	}
}

func (c *Console) printStatus(ctx context.Context) error {
	for {
		st, err := c.ch.Status.Pop(ctx)
		if err != nil {
			return err
		}
		c.logger.Verbose("%s", st)
		if st.Kind == chat.NicknameReceived {
			c.print(fmt.Sprintf("*** you are %s", st.Nickname))
		}
	}
}

func (c *Console) readInput() {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		c.ch.Outbound.Push(text)
	}
	if err := sc.Err(); err != nil {
		c.logger.Warn("console input: %v", err)
		return
	}
	c.logger.Debug("console input closed")
}

func (c *Console) print(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, line) //nolint:errcheck
}
