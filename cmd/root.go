// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"minechat/config"
	"minechat/internal/core"
	"minechat/internal/metrics"
	"minechat/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X minechat/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Process surroundings, replaced in tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	osEnv            = config.OSEnv

	isTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	}
)

// invocation is one parsed command line.
type invocation struct {
	command string
	cfg     *config.Config
	fs      *flag.FlagSet

	showHelp, showVersion, dryRun bool
}

// Execute parses args and runs the chat client, or the register
// command when args start with "register".
func Execute(ctx context.Context, args []string) error {
	inv, err := parseArgs(args)
	if err != nil {
		return err
	}
	if inv.showHelp {
		printUsage(inv.fs, inv.command)
		return nil
	}
	if inv.showVersion {
		fmt.Fprintf(stdout, "minechat %s\n", version)
		return nil
	}
	return inv.run(ctx)
}

// parseArgs resolves the configuration from every source.  Flags win
// over the environment, which wins over the files and the defaults.
func parseArgs(args []string) (*invocation, error) {
	inv := &invocation{command: "chat"}
	if len(args) > 0 && args[0] == "register" {
		inv.command, args = "register", args[1:]
	}

	// ── sources ──────────────────────────────────────────────────
	cfg, err := loadSources(args, inv.command)
	if err != nil {
		return nil, err
	}
	inv.cfg = cfg

	// ── flags ────────────────────────────────────────────────────
	fs := flag.NewFlagSet("minechat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inv.fs = fs
	var quiet bool
	var louder int
	bindCommon(fs, cfg)
	if inv.command == "register" {
		fs.StringVarP(&cfg.Username, "username", "u", cfg.Username, "Nickname to register")
	} else {
		bindChat(fs, cfg)
	}
	fs.CountVarP(&louder, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	fs.BoolVar(&inv.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&inv.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&inv.showHelp, "help", "h", false, "Show this help")
	fs.Usage = func() { printUsage(fs, inv.command) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}
	cfg.Verbose += louder
	if quiet {
		cfg.Verbose = 0
	}
	return inv, nil
}

// run builds the selected mode and runs it until ctx is cancelled.
func (inv *invocation) run(ctx context.Context) error {
	cfg, command := inv.cfg, inv.command

	// ── build ────────────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)
	interactive := command == "chat" && !cfg.Plain && isTerminal()

	if cfg.DebugLog != "" {
		f, err := util.OpenLogFile(cfg.DebugLog)
		if err != nil {
			return err
		}
		defer f.Close()
		logger.SetOutput(f)
		logger.SetTimestamps(true)
	} else if interactive {
		// the terminal UI owns the screen
		logger.SetOutput(io.Discard)
	}

	opts := core.Options{
		Stdin:       stdin,
		Stdout:      stdout,
		Interactive: interactive,
		Metrics:     metrics.New(),
	}

	var (
		mode core.Mode
		err  error
	)
	if command == "register" {
		mode, err = core.BuildRegister(cfg, logger, opts)
	} else {
		mode, err = core.BuildChat(cfg, logger, opts)
	}
	if err != nil {
		return err
	}
	if inv.dryRun {
		logger.Info("configuration OK")
		return nil
	}

	logger.Debug("minechat %s: %s to %s:%d", version, command, cfg.Host, cfg.Port)
	return mode.Run(ctx)
}

// loadSources builds the configuration that flags start from: defaults,
// then the YAML file, then the dotenv file and the environment.  Only
// --config and --env-file are read from args here.
func loadSources(args []string, command string) (*config.Config, error) {
	pre := flag.NewFlagSet("minechat", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	configPath := pre.String("config", "", "")
	envFile := pre.String("env-file", config.DefaultEnvFile, "")
	pre.BoolP("help", "h", false, "")
	// Real parse errors are reported by the full flag set.
	_ = pre.Parse(args)

	cfg := config.Default()
	if command == "register" {
		cfg.Port = config.DefaultRegisterPort
	}
	cfg.ConfigFile = *configPath
	cfg.EnvFile = *envFile

	if cfg.ConfigFile != "" {
		if err := config.LoadFile(cfg.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}
	dotenv, err := config.ReadEnvFile(cfg.EnvFile, pre.Changed("env-file"))
	if err != nil {
		return nil, err
	}
	if err := config.LoadFromEnv(cfg, config.Chain(osEnv, dotenv)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindCommon registers the flags shared by every command, defaulting
// each to the value already loaded into cfg.
func bindCommon(fs *flag.FlagSet, cfg *config.Config) {
	// ── connection ───────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Chat server host")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Chat server port")
	fs.IntVar(&cfg.LocalPort, "local-port", cfg.LocalPort, "Bind the source port (0 = ephemeral)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for one connect")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Read timeout; a silent server is declared lost after this")

	// ── sources ──────────────────────────────────────────────────
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML configuration file")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "Dotenv file holding "+config.EnvPrefix+"TOKEN")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Connect through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
}

func bindChat(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.WritePort, "write-port", cfg.WritePort, "Port for the token and outbound messages (0 = same socket as --port)")
	fs.StringVarP(&cfg.Token, "token", "t", cfg.Token, "Account token")
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Transcript file")

	// ── liveness / reconnect ─────────────────────────────────────
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Pause between pings (0 disables pings)")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "First delay after a lost connection")
	fs.DurationVar(&cfg.ReconnectMax, "reconnect-max", cfg.ReconnectMax, "Longest delay between reconnects")

	// ── display ──────────────────────────────────────────────────
	fs.BoolVar(&cfg.Plain, "plain", cfg.Plain, "Line console even on a terminal")
	fs.StringVar(&cfg.DebugLog, "debug-log", cfg.DebugLog, "Write diagnostics to this file")
}

func printUsage(fs *flag.FlagSet, command string) {
	if command == "register" {
		fmt.Fprintf(stderr, `minechat register v%s

Create an account and save its token to the env file.

Usage:
  minechat register -u <name> [options]

Options:
`, version)
		fs.PrintDefaults()
		return
	}

	fmt.Fprintf(stderr, `minechat v%s

A resilient client for the minechat line-protocol chat.

Usage:
  minechat [options]                          Chat
  minechat register -u <name> [options]       Create an account

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  minechat                                    Join minechat.dvmn.org (5000/5050)
  minechat register -u Bob                    Save a token to .env
  minechat --write-port 0 -o chat.txt         One socket for reading and sending
  minechat -T admin@bastion --plain           Through an SSH gateway
  echo "hello" | minechat --plain             Send one line
`)
}
