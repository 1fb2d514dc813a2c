package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

// TestBuildAuthMethods_ExplicitKey verifies that a key file is loaded.
func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath, nil)

	methods, err := BuildAuthMethods(&Config{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one auth method, got %d", len(methods))
	}
}

// TestBuildAuthMethods_MissingKey verifies a clear error message.
func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := BuildAuthMethods(&Config{KeyPath: "/nonexistent/key"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestBuildAuthMethods_EncryptedKeyPromptsForPassphrase(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_locked")
	writeTestKey(t, keyPath, []byte("hunter2"))

	var asked string
	stubPrompt(t, func(label string) ([]byte, error) {
		asked = label
		return []byte("hunter2"), nil
	})

	if _, err := BuildAuthMethods(&Config{KeyPath: keyPath}); err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if asked == "" {
		t.Error("passphrase was never requested")
	}
}

func TestBuildAuthMethods_WrongPassphrase(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_locked")
	writeTestKey(t, keyPath, []byte("hunter2"))
	stubPrompt(t, func(string) ([]byte, error) { return []byte("wrong"), nil })

	if _, err := BuildAuthMethods(&Config{KeyPath: keyPath}); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}
}

func TestBuildAuthMethods_Password(t *testing.T) {
	stubPrompt(t, func(string) ([]byte, error) { return []byte("secret"), nil })

	methods, err := BuildAuthMethods(&Config{User: "chat", Host: "gw", PromptPass: true})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one auth method, got %d", len(methods))
	}
}

// TestHostKeyCallback_Insecure verifies that host keys are not checked
// unless asked for.
func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&Config{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

func TestHostKeyCallback_Strict(t *testing.T) {
	known := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(known, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := hostKeyCallback(&Config{StrictHostKey: true, KnownHosts: known}); err != nil {
		t.Fatalf("hostKeyCallback: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "absent")
	if _, err := hostKeyCallback(&Config{StrictHostKey: true, KnownHosts: missing}); err == nil {
		t.Fatal("expected error for a missing known_hosts file")
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// writeTestKey generates an ed25519 key in OpenSSH format, encrypted
// when passphrase is non-nil, and returns its signer.
func writeTestKey(t *testing.T, path string, passphrase []byte) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	var block *pem.Block
	if passphrase != nil {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "minechat-test", passphrase)
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "minechat-test")
	}
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func stubPrompt(t *testing.T, fn func(string) ([]byte, error)) {
	t.Helper()
	orig := promptSecret
	promptSecret = fn
	t.Cleanup(func() { promptSecret = orig })
}
