// Package config defines the runtime configuration for minechat and
// provides helpers for parsing tunnel specifications and validating
// the result.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	errs "minechat/internal/errors"
)

// Config holds every tuneable for one minechat process.  The yaml tags
// name the keys accepted by the --config file.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`       // chat stream
	WritePort   int           `yaml:"write_port"` // 0 → same socket as Port
	Token       string        `yaml:"token"`
	Output      string        `yaml:"output"` // transcript path
	LocalPort   int           `yaml:"local_port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ── Liveness ─────────────────────────────────────────────────────
	PingInterval time.Duration `yaml:"ping_interval"` // 0 disables pings
	Timeout      time.Duration `yaml:"timeout"`

	// ── Reconnect ────────────────────────────────────────────────────
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	ReconnectMax        time.Duration `yaml:"reconnect_max"`
	ReconnectMultiplier float64       `yaml:"reconnect_multiplier"`
	ReconnectJitter     bool          `yaml:"reconnect_jitter"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string        `yaml:"tunnel"` // raw user@host[:port] from -T
	TunnelEnabled  bool          `yaml:"-"`
	TunnelUser     string        `yaml:"-"`
	TunnelHost     string        `yaml:"-"`
	TunnelPort     int           `yaml:"-"`
	SSHKeyPath     string        `yaml:"ssh_key"`
	SSHPassword    bool          `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool          `yaml:"ssh_agent"`
	StrictHostKey  bool          `yaml:"strict_hostkey"`
	KnownHostsPath string        `yaml:"known_hosts"`
	SSHKeepAlive   time.Duration `yaml:"ssh_keepalive"`

	// ── Display / output ─────────────────────────────────────────────
	Plain    bool   `yaml:"plain"`
	DebugLog string `yaml:"debug_log"`
	Verbose  int    `yaml:"verbose"`

	// ── Sources ──────────────────────────────────────────────────────
	ConfigFile string `yaml:"-"`
	EnvFile    string `yaml:"-"`

	// ── Registration ─────────────────────────────────────────────────
	Username string `yaml:"-"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Host:                DefaultHost,
		Port:                DefaultPort,
		WritePort:           DefaultWritePort,
		Output:              DefaultOutput,
		DialTimeout:         DefaultDialTimeout,
		PingInterval:        DefaultPingInterval,
		Timeout:             DefaultLivenessTimeout,
		ReconnectDelay:      DefaultReconnectDelay,
		ReconnectMax:        DefaultReconnectMax,
		ReconnectMultiplier: DefaultReconnectMultiplier,
		ReconnectJitter:     true,
		SSHKeepAlive:        DefaultSSHKeepAlive,
		EnvFile:             DefaultEnvFile,
		Verbose:             1,
	}
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.  An empty
// spec disables the tunnel.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &errs.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks the settings the chat client needs.  The first
// problem found is returned as an *errors.ConfigError.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &errs.ConfigError{Field: "host", Message: "is required"}
	}
	if err := validPort("port", c.Port); err != nil {
		return err
	}
	if c.WritePort != 0 {
		if err := validPort("write-port", c.WritePort); err != nil {
			return err
		}
	}
	if c.LocalPort != 0 {
		if err := validPort("local-port", c.LocalPort); err != nil {
			return err
		}
		if c.WritePort != 0 && c.WritePort != c.Port {
			return &errs.ConfigError{
				Field:   "local-port",
				Value:   c.LocalPort,
				Message: "cannot bind two sockets",
				Hint:    "drop --local-port or --write-port",
			}
		}
	}
	if c.Output == "" {
		return &errs.ConfigError{
			Field:   "output",
			Message: "is required",
			Hint:    "the transcript is appended to this file, e.g. --output " + DefaultOutput,
		}
	}
	if c.Timeout <= 0 {
		return &errs.ConfigError{
			Field:   "timeout",
			Value:   c.Timeout,
			Message: "must be positive",
			Hint:    "a silent connection is only detected once this elapses",
		}
	}
	if c.PingInterval < 0 {
		return &errs.ConfigError{Field: "ping-interval", Value: c.PingInterval, Message: "must not be negative", Hint: "use 0 to disable pings"}
	}
	if c.ReconnectDelay <= 0 {
		return &errs.ConfigError{Field: "reconnect-delay", Value: c.ReconnectDelay, Message: "must be positive"}
	}
	if c.ReconnectMax < c.ReconnectDelay {
		return &errs.ConfigError{
			Field:   "reconnect-max",
			Value:   c.ReconnectMax,
			Message: fmt.Sprintf("must not be below --reconnect-delay (%s)", c.ReconnectDelay),
		}
	}
	if c.ReconnectMultiplier < 1 {
		return &errs.ConfigError{Field: "reconnect-multiplier", Value: c.ReconnectMultiplier, Message: "must be at least 1"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &errs.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
	}
	return nil
}

// ValidateRegister checks the settings the register command needs.
func (c *Config) ValidateRegister() error {
	if c.Host == "" {
		return &errs.ConfigError{Field: "host", Message: "is required"}
	}
	if err := validPort("port", c.Port); err != nil {
		return err
	}
	if c.Username == "" {
		return &errs.ConfigError{Field: "username", Message: "is required", Hint: "minechat register -u <name>"}
	}
	if c.EnvFile == "" {
		return &errs.ConfigError{Field: "env-file", Message: "is required", Hint: "the token is saved there as " + EnvPrefix + "TOKEN"}
	}
	return nil
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &errs.ConfigError{Field: field, Value: port, Message: "out of range 1-65535"}
	}
	return nil
}
