package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"minechat/config"
	errs "minechat/internal/errors"
	"minechat/internal/register"
	"minechat/internal/retry"
	"minechat/internal/transport"
	"minechat/util"
)

// registerBackoff retries a registration whose connection timed out or
// dropped midway.  Refusals and protocol errors are final.
func registerBackoff() *retry.Backoff {
	return &retry.Backoff{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2,
		MaxAttempts:  3,
	}
}

// RegisterMode creates an account and saves its token to the env file,
// where the chat mode picks it up as MINECHAT_TOKEN.
type RegisterMode struct {
	Registrar *register.Registrar
	Backoff   *retry.Backoff // nil makes a single attempt
	Dialer    transport.Dialer
	Address   string
	Username  string
	EnvFile   string
	Logger    *util.Logger
	Stdout    io.Writer
}

// Run performs the registration exchange, retrying transient network
// failures per Backoff, and saves the token.
func (m *RegisterMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	policy := m.Backoff
	if policy == nil {
		policy = &retry.Backoff{MaxAttempts: 1}
	}

	var acct *register.Account
	err := policy.Do(ctx, func(attempt int) error {
		m.Logger.Verbose("registering %q at %s (attempt %d)", m.Username, m.Address, attempt)
		var err error
		acct, err = m.Registrar.Register(ctx, m.Address, m.Username)
		if err != nil && !errs.IsRetryable(err) {
			return retry.Permanent(err)
		}
		if err != nil {
			m.Logger.Warn("register: %v", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := config.SaveToken(m.EnvFile, acct.Token); err != nil {
		return err
	}
	fmt.Fprintf(m.Stdout, "Registered as %s. Token saved to %s.\n", acct.Nickname, m.EnvFile)
	return nil
}
