package core

import (
	"io"
	"os"

	"minechat/config"
	"minechat/internal/chat"
	"minechat/internal/metrics"
	"minechat/internal/register"
	"minechat/internal/retry"
	"minechat/internal/transport"
	"minechat/internal/ui"
	"minechat/tunnel"
	"minechat/util"
)

// Options carries the process-level collaborators a mode needs beyond
// its Config.
type Options struct {
	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer

	// Interactive selects the terminal UI instead of the line console.
	Interactive bool

	Metrics *metrics.Collector
}

func (o *Options) stdin() io.Reader {
	if o.Stdin != nil {
		return o.Stdin
	}
	return os.Stdin
}

func (o *Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

// BuildChat constructs the chat client: a supervisor feeding a display.
func BuildChat(cfg *config.Config, logger *util.Logger, opts Options) (Mode, error) {
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ch := chat.NewChannels()
	dialer := buildDialer(cfg, logger)
	sup := chat.NewSupervisor(chat.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		WritePort:    cfg.WritePort,
		Token:        cfg.Token,
		Output:       cfg.Output,
		PingInterval: cfg.PingInterval,
		Timeout:      cfg.Timeout,
		Backoff: &retry.Backoff{
			InitialDelay: cfg.ReconnectDelay,
			MaxDelay:     cfg.ReconnectMax,
			Multiplier:   cfg.ReconnectMultiplier,
			Jitter:       cfg.ReconnectJitter,
		},
	}, dialer, ch, logger, opts.Metrics)

	var display Display
	if opts.Interactive && !cfg.Plain {
		display = ui.NewTUI(ch, logger)
	} else {
		display = ui.NewConsole(ch, opts.stdin(), opts.stdout(), logger)
	}

	return &ChatMode{
		Supervisor: sup,
		Display:    display,
		Dialer:     dialer,
		Logger:     logger,
		Metrics:    opts.Metrics,
	}, nil
}

// BuildRegister constructs the one-shot registration flow.
func BuildRegister(cfg *config.Config, logger *util.Logger, opts Options) (Mode, error) {
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateRegister(); err != nil {
		return nil, err
	}

	dialer := buildDialer(cfg, logger)
	return &RegisterMode{
		Registrar: register.New(dialer, cfg.Timeout, logger),
		Backoff:   registerBackoff(),
		Dialer:    dialer,
		Address:   util.FormatAddr(cfg.Host, cfg.Port),
		Username:  cfg.Username,
		EnvFile:   cfg.EnvFile,
		Logger:    logger,
		Stdout:    opts.stdout(),
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		gw := tunnel.NewGateway(&tunnel.Config{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.DialTimeout,
			KeepAlive:     cfg.SSHKeepAlive,
		}, logger)
		return transport.NewSSHDialer(gw, gw.Addr(), logger)
	}

	return &transport.TCPDialer{
		Timeout:   cfg.DialTimeout,
		LocalPort: cfg.LocalPort,
	}
}
