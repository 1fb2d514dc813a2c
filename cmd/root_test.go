package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"minechat/config"
)

// sandbox isolates a test from the real environment, terminal and
// working directory.
func sandbox(t *testing.T, env map[string]string) (out, errOut *bytes.Buffer) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	origOut, origErr, origEnv, origTTY := stdout, stderr, osEnv, isTerminal
	stdout, stderr = out, errOut
	osEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	isTerminal = func() bool { return false }
	t.Cleanup(func() {
		stdout, stderr, osEnv, isTerminal = origOut, origErr, origEnv, origTTY
	})
	return out, errOut
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out, _ := sandbox(t, nil)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.String(); got != "minechat "+version+"\n" {
		t.Errorf("version output = %q", got)
	}
}

// TestExecute_Help verifies --help for both commands.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"register", "-h"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, errOut := sandbox(t, nil)
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(errOut.String(), "minechat register") {
				t.Errorf("usage missing register line:\n%s", errOut.String())
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	sandbox(t, nil)
	if err := Execute(context.Background(), []string{"--dry-run", "-q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	sandbox(t, nil)
	err := Execute(context.Background(), []string{"--dry-run", "--timeout", "0s"})
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout validation error, got %v", err)
	}
}

func TestExecute_RegisterNeedsUsername(t *testing.T) {
	sandbox(t, nil)
	err := Execute(context.Background(), []string{"register", "--dry-run"})
	if err == nil || !strings.Contains(err.Error(), "username") {
		t.Fatalf("expected username error, got %v", err)
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	sandbox(t, nil)
	if err := Execute(context.Background(), []string{"--nonexistent-flag"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestExecute_UnexpectedArgument(t *testing.T) {
	sandbox(t, nil)
	if err := Execute(context.Background(), []string{"minechat.dvmn.org"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

// TestExecute_ChatFlagsOnlyForChat verifies that register rejects
// chat-only flags.
func TestExecute_ChatFlagsOnlyForChat(t *testing.T) {
	sandbox(t, nil)
	if err := Execute(context.Background(), []string{"register", "-u", "Bob", "--token", "x"}); err == nil {
		t.Fatal("expected error for --token on register")
	}
}

// TestParseArgs_Precedence layers every source and checks which one
// wins for each field.
func TestParseArgs_Precedence(t *testing.T) {
	sandbox(t, map[string]string{"MINECHAT_PORT": "7000"})

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "minechat.yaml")
	yaml := "host: yaml-host\nport: 6000\noutput: yaml.log\ntimeout: 10s\n"
	if err := os.WriteFile(yamlPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(dir, "chat.env")
	if err := os.WriteFile(envPath, []byte("MINECHAT_HOST=dotenv-host\nMINECHAT_TOKEN=abc123\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	inv, err := parseArgs([]string{
		"--config", yamlPath, "--env-file", envPath,
		"-o", "flag.log", "-vv",
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := inv.cfg

	checks := []struct {
		field     string
		got, want interface{}
	}{
		{"host (dotenv over yaml)", cfg.Host, "dotenv-host"},
		{"port (env over yaml)", cfg.Port, 7000},
		{"output (flag over yaml)", cfg.Output, "flag.log"},
		{"timeout (yaml over default)", cfg.Timeout, 10 * time.Second},
		{"token (dotenv)", cfg.Token, "abc123"},
		{"ping interval (default)", cfg.PingInterval, config.DefaultPingInterval},
		{"verbose (-vv over normal)", cfg.Verbose, 3},
		{"env file", cfg.EnvFile, envPath},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestParseArgs_RegisterPort(t *testing.T) {
	sandbox(t, nil)
	inv, err := parseArgs([]string{"register", "-u", "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	if inv.command != "register" || inv.cfg.Port != config.DefaultRegisterPort || inv.cfg.Username != "Bob" {
		t.Errorf("command %q port %d username %q", inv.command, inv.cfg.Port, inv.cfg.Username)
	}
}

func TestParseArgs_MissingEnvFile(t *testing.T) {
	sandbox(t, nil)
	if _, err := parseArgs([]string{"--env-file", "absent.env"}); err == nil {
		t.Fatal("expected error for a named env file that does not exist")
	}
}
