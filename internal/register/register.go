// Package register creates a minechat account.  The server hands back
// an account hash, which is the token the chat client authenticates
// with on later connections.
package register

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"minechat/internal/chat"
	errs "minechat/internal/errors"
	"minechat/internal/session"
	"minechat/internal/transport"
	"minechat/util"
)

// ErrRefused is returned when the server answers the username with an
// empty reply.
var ErrRefused = errs.New("registration refused")

// Account is what the server returns for a new user.
type Account struct {
	Nickname string `json:"nickname"`
	Token    string `json:"account_hash"`
}

// Registrar runs the registration exchange over one connection.
type Registrar struct {
	dialer  transport.Dialer
	timeout time.Duration
	logger  *util.Logger
}

// New creates a Registrar.  timeout bounds each read from the server;
// zero disables it.
func New(dialer transport.Dialer, timeout time.Duration, logger *util.Logger) *Registrar {
	return &Registrar{dialer: dialer, timeout: timeout, logger: logger.Named("register")}
}

// Register connects to addr and asks for an account named username.
//
// The exchange is: read the greeting, send an empty line to skip
// authentication, read the name prompt, send the name, read one JSON
// line holding the account.
func (r *Registrar) Register(ctx context.Context, addr, username string) (*Account, error) {
	username = chat.Sanitize(username)
	if username == "" {
		return nil, &errs.ConfigError{Field: "username", Message: "is required"}
	}

	conn, err := r.dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.Wrap("dial", addr, err)
	}
	sess := session.New(uuid.NewString()[:8], conn, nil, nil)
	defer sess.Close()
	stop := context.AfterFunc(ctx, sess.Interrupt)
	defer stop()

	r.logger.Verbose("connected to %s", addr)
	if r.timeout > 0 {
		sess.Read.SetDeadline(time.Now().Add(r.timeout)) //nolint:errcheck
	}

	line, err := r.exchange(sess, username)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Lost("register", addr, err)
	}

	acct, err := parseAccount(line)
	if err != nil {
		return nil, err
	}
	r.logger.Info("registered as %s", acct.Nickname)
	return acct, nil
}

func (r *Registrar) exchange(sess *session.Session, username string) (string, error) {
	greeting, err := sess.Read.ReadLine()
	if err != nil {
		return "", err
	}
	r.logger.Debug("greeting %q", strings.TrimRight(greeting, "\n"))

	if err := sess.Write.SendString("\n"); err != nil {
		return "", err
	}
	prompt, err := sess.Read.ReadLine()
	if err != nil {
		return "", err
	}
	r.logger.Debug("prompt %q", strings.TrimRight(prompt, "\n"))

	if err := sess.Write.SendString(username + "\n"); err != nil {
		return "", err
	}
	return sess.Read.ReadLine()
}

// parseAccount decodes the server's answer to a username.
func parseAccount(line string) (*Account, error) {
	line = strings.TrimSpace(line)

	var raw any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("%w: register reply %q is not JSON", errs.ErrProtocol, line)
	}
	if raw == nil || raw == false {
		return nil, ErrRefused
	}

	var acct Account
	if err := json.Unmarshal([]byte(line), &acct); err != nil || acct.Token == "" {
		return nil, fmt.Errorf("%w: register reply %q has no account_hash", errs.ErrProtocol, line)
	}
	return &acct, nil
}
