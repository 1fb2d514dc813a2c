package chat

import (
	"context"

	"minechat/internal/session"
	"minechat/util"
)

// Reader owns the inbound half of a session and fans every decoded
// line out to the display, the transcript and the watcher.
type Reader struct {
	ch     *Channels
	logger *util.Logger
}

// NewReader creates a Reader publishing to ch.
func NewReader(ch *Channels, logger *util.Logger) *Reader {
	return &Reader{ch: ch, logger: logger.Named("reader")}
}

// Run reads lines until the connection fails or ctx is cancelled.  It
// never returns nil: a clean end of stream is still a lost connection,
// and retrying is the supervisor's job.
//
// Each line is pushed to Inbound, Transcript and Liveness, in that
// order, before the next read starts.
func (r *Reader) Run(ctx context.Context, half *session.ReadHalf) error {
	r.logger.Debug("streaming from %s", half.Addr())
	for {
		line, err := half.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Verbose("%v", err)
			return err
		}

		r.ch.Inbound.Push(line)
		r.ch.Transcript.Push(line)
		r.ch.Liveness.Push(NoticeMessage)
	}
}
