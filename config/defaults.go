package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost is the public minechat server.
	DefaultHost = "minechat.dvmn.org"

	// DefaultPort streams the chat.  The server ignores anything sent
	// to it.
	DefaultPort = 5000

	// DefaultWritePort takes the token and outbound messages.  A write
	// port of 0 sends everything over DefaultPort's socket instead.
	DefaultWritePort = 5050

	// DefaultRegisterPort is where new accounts are created.
	DefaultRegisterPort = 5050

	// DefaultOutput is the transcript file.
	DefaultOutput = "chat-log.txt"

	// DefaultEnvFile holds the saved token.
	DefaultEnvFile = ".env"

	// EnvPrefix starts every environment variable minechat reads.
	EnvPrefix = "MINECHAT_"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultDialTimeout bounds one TCP or SSH connect.
	DefaultDialTimeout = 10 * time.Second

	// DefaultPingInterval is the pause between liveness pings.
	DefaultPingInterval = 1 * time.Second

	// DefaultLivenessTimeout is how long a ping reply or any chat
	// traffic may take before the connection is declared lost.
	DefaultLivenessTimeout = 30 * time.Second

	// DefaultReconnectDelay is the first pause after a lost connection.
	DefaultReconnectDelay = 1 * time.Second

	// DefaultReconnectMax caps the exponential backoff between
	// reconnection attempts.
	DefaultReconnectMax = 30 * time.Second

	// DefaultReconnectMultiplier grows the delay after each failure.
	DefaultReconnectMultiplier = 2.0

	// DefaultSSHKeepAlive is the SSH keepalive interval.
	DefaultSSHKeepAlive = 30 * time.Second
)
