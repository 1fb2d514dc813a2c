package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// promptSecret reads a secret from the terminal without echo.  Tests
// replace it.
var promptSecret = func(label string) ([]byte, error) { //nolint:gochecknoglobals
	fmt.Fprint(os.Stderr, label)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// wellKnownKeys are tried from ~/.ssh when nothing is configured.
var wellKnownKeys = []string{"id_ed25519", "id_ecdsa", "id_rsa"} //nolint:gochecknoglobals

// BuildAuthMethods returns the login methods for cfg.  Key files come
// first, then the agent, then a password.  The password is asked for
// at most once, when the gateway first requests it.
func BuildAuthMethods(cfg *Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyPath != "" {
		signer, err := loadSigner(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.UseAgent {
		ag, err := dialAgent()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		methods = append(methods, ssh.PublicKeysCallback(ag.Signers))
	}

	if cfg.PromptPass {
		methods = append(methods, ssh.PasswordCallback(passwordOnce(cfg)))
	}

	if len(methods) == 0 {
		methods = fallbackMethods()
	}
	if len(methods) == 0 {
		return nil, errors.New("no SSH credentials found; use --ssh-key, --ssh-agent or --ssh-password")
	}
	return methods, nil
}

// passwordOnce prompts on the first call and replays the answer after.
func passwordOnce(cfg *Config) func() (string, error) {
	var (
		once sync.Once
		pass string
		err  error
	)
	return func() (string, error) {
		once.Do(func() {
			var b []byte
			b, err = promptSecret(fmt.Sprintf("SSH password for %s@%s: ", cfg.User, cfg.Host))
			pass = string(b)
		})
		return pass, err
	}
}

// loadSigner parses a private key file, asking for the passphrase when
// the key is encrypted.
func loadSigner(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(pem)
	var locked *ssh.PassphraseMissingError
	if !errors.As(err, &locked) {
		return signer, err
	}

	pass, err := promptSecret(fmt.Sprintf("Passphrase for %s: ", path))
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return ssh.ParsePrivateKeyWithPassphrase(pem, pass)
}

func dialAgent() (agent.ExtendedAgent, error) {
	sock, ok := os.LookupEnv("SSH_AUTH_SOCK")
	if !ok || sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	return agent.NewClient(conn), nil
}

// fallbackMethods offers the running agent and any unencrypted
// well-known key, like a bare `ssh` invocation would.
func fallbackMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if ag, err := dialAgent(); err == nil {
		methods = append(methods, ssh.PublicKeysCallback(ag.Signers))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return methods
	}
	var signers []ssh.Signer
	for _, name := range wellKnownKeys {
		pem, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if s, err := ssh.ParsePrivateKey(pem); err == nil {
			signers = append(signers, s)
		}
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods
}

// hostKeyCallback verifies the gateway against known_hosts when strict
// checking is on, and accepts any key otherwise.
func hostKeyCallback(cfg *Config) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}

	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts %s: %w", path, err)
	}
	return cb, nil
}
