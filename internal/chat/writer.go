package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	errs "minechat/internal/errors"
	"minechat/internal/metrics"
	"minechat/internal/session"
	"minechat/util"
)

// newlines are removed from outbound text: the server frames messages
// with a blank line, so a bare "\n" inside a payload would split it.
var newlines = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// Sanitize strips embedded line breaks from text.
func Sanitize(text string) string { return newlines.Replace(text) }

// Writer owns the outbound half of a session.  It authenticates once
// per connection, then drains the Outbound queue.
type Writer struct {
	ch      *Channels
	token   string
	timeout time.Duration
	logger  *util.Logger
	metrics *metrics.Collector
}

// NewWriter creates a Writer.  An empty token means the session stays
// anonymous.  timeout bounds each handshake read; zero disables it.
func NewWriter(ch *Channels, token string, timeout time.Duration, logger *util.Logger, m *metrics.Collector) *Writer {
	return &Writer{
		ch:      ch,
		token:   Sanitize(token),
		timeout: timeout,
		logger:  logger.Named("writer"),
		metrics: m,
	}
}

// authReply is the accepted form of the server's answer to a token.
type authReply struct {
	Nickname string `json:"nickname"`
}

// Handshake discards the server greeting and, when a token is
// configured, authenticates with it.  It returns the nickname the
// server assigned, or "" for an anonymous session.
//
// A null or otherwise falsy reply fails with ErrInvalidToken, which the
// supervisor must not retry.  A reply that is not JSON, or an object
// without a nickname, is a protocol error and counts as a lost
// connection.
func (w *Writer) Handshake(ctx context.Context, sess *session.Session) (string, error) {
	ack := sess.Ack
	if w.timeout > 0 {
		ack.SetDeadline(time.Now().Add(w.timeout)) //nolint:errcheck
		defer ack.SetDeadline(time.Time{})         //nolint:errcheck
	}

	greeting, err := ack.ReadLine()
	if err != nil {
		return "", w.fail(ctx, err)
	}
	w.logger.Debug("greeting %q", strings.TrimRight(greeting, "\n"))

	if w.token == "" {
		return "", nil
	}

	if err := sess.Write.SendString(w.token + "\n"); err != nil {
		return "", w.fail(ctx, err)
	}
	line, err := ack.ReadLine()
	if err != nil {
		return "", w.fail(ctx, err)
	}

	reply, err := parseAuthReply(line)
	if err != nil {
		if errs.Is(err, errs.ErrInvalidToken) {
			w.logger.Error("the server did not recognise the token; check it or register again")
			return "", err
		}
		return "", errs.Lost("handshake", ack.Addr(), err)
	}

	w.logger.Info("authorized as %s", reply.Nickname)
	w.ch.Status.Push(Nickname(reply.Nickname))
	w.ch.Inbound.Push(fmt.Sprintf("Authorized as %s.\n", reply.Nickname))
	w.ch.Liveness.Push(NoticeAuthorized)
	return reply.Nickname, nil
}

// Run sends queued messages until the connection fails or ctx is
// cancelled.  A message none of which reached the socket goes back to
// the head of the queue for the next connection.  One cut off midway
// is dropped, since the server may already have shown part of it.
func (w *Writer) Run(ctx context.Context, half *session.WriteHalf) error {
	for {
		text, err := w.ch.Outbound.Pop(ctx)
		if err != nil {
			return err
		}

		if err := half.SendString(Sanitize(text) + "\n\n"); err != nil {
			if errs.Is(err, session.ErrPartialSend) {
				w.logger.Warn("message %q cut off by the connection loss, not resent", text)
			} else {
				w.ch.Outbound.PushFront(text)
			}
			return w.fail(ctx, err)
		}
		w.metrics.MessageSent()
		w.ch.Liveness.Push(NoticeSent)
	}
}

func (w *Writer) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.logger.Verbose("%v", err)
	return err
}

// parseAuthReply decodes the server's one-line answer to a token.
func parseAuthReply(line string) (*authReply, error) {
	line = strings.TrimSpace(line)

	var raw any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("%w: auth reply %q is not JSON", errs.ErrProtocol, line)
	}
	if !truthy(raw) {
		return nil, fmt.Errorf("server rejected token: %w", errs.ErrInvalidToken)
	}

	var reply authReply
	if err := json.Unmarshal([]byte(line), &reply); err != nil || reply.Nickname == "" {
		return nil, fmt.Errorf("%w: auth reply %q has no nickname", errs.ErrProtocol, line)
	}
	return &reply, nil
}

// truthy mirrors JSON's notion of an empty answer: null, false, 0, ""
// and empty containers all mean "no".
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
