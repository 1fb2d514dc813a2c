package config

// loader.go - configuration loading from files and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. The dotenv file, --env-file  (this file)
//   4. The YAML file, --config  (this file)
//   5. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "minechat/internal/errors"
)

// Lookup resolves one variable by its full name.
type Lookup func(key string) (string, bool)

// Chain returns a Lookup that asks each source in turn.
func Chain(sources ...Lookup) Lookup {
	return func(key string) (string, bool) {
		for _, src := range sources {
			if v, ok := src(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

// noVars is the Lookup of an absent env file.
func noVars(string) (string, bool) { return "", false }

// ReadEnvFile parses a dotenv file.  A missing file is only an error
// when required is set, i.e. when the user named the file explicitly.
func ReadEnvFile(path string, required bool) (Lookup, error) {
	if path == "" {
		return noVars, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return noVars, nil
		}
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}, nil
}

// SaveToken stores token in the dotenv file at path as MINECHAT_TOKEN,
// keeping any other variables already there.
func SaveToken(path, token string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		vars = map[string]string{}
	}
	vars[EnvPrefix+"TOKEN"] = token
	if err := godotenv.Write(vars, path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg.  Unknown keys are
// rejected so that typos do not pass silently.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported variable uses the MINECHAT_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("30s", "1m") or a bare number of seconds.

// LoadFromEnv overlays the variables found by lookup onto cfg.  Only
// non-empty values override.  A value that does not parse is returned
// as a *errors.ConfigError.
func LoadFromEnv(cfg *Config, lookup Lookup) error {
	e := envReader{lookup: lookup}

	e.str("HOST", &cfg.Host)
	e.int("PORT", &cfg.Port)
	e.int("WRITE_PORT", &cfg.WritePort)
	e.str("TOKEN", &cfg.Token)
	e.str("OUTPUT", &cfg.Output)
	e.int("LOCAL_PORT", &cfg.LocalPort)
	e.duration("DIAL_TIMEOUT", &cfg.DialTimeout)

	e.duration("PING_INTERVAL", &cfg.PingInterval)
	e.duration("TIMEOUT", &cfg.Timeout)

	e.duration("RECONNECT_DELAY", &cfg.ReconnectDelay)
	e.duration("RECONNECT_MAX", &cfg.ReconnectMax)

	// SSH tunnel
	e.str("TUNNEL", &cfg.TunnelSpec)
	e.str("SSH_KEY", &cfg.SSHKeyPath)
	e.bool("SSH_PASSWORD", &cfg.SSHPassword)
	e.bool("SSH_AGENT", &cfg.UseSSHAgent)
	e.bool("STRICT_HOSTKEY", &cfg.StrictHostKey)
	e.str("KNOWN_HOSTS", &cfg.KnownHostsPath)

	// Output
	e.bool("PLAIN", &cfg.Plain)
	e.str("DEBUG_LOG", &cfg.DebugLog)
	e.int("VERBOSE", &cfg.Verbose)

	e.str("USERNAME", &cfg.Username)

	return e.err
}

// envReader records the first parse failure and skips the rest.
type envReader struct {
	lookup Lookup
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(name, value, msg string) {
	e.err = &errs.ConfigError{Field: strings.ToLower(EnvPrefix + name), Value: value, Message: msg}
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, "not an integer")
		return
	}
	*dst = n
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		v = strings.ToLower(v)
		*dst = v == "1" || v == "true" || v == "yes"
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		e.fail(name, v, "not a duration")
		return
	}
	*dst = d
}

// parseDuration accepts "1m30s" or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(sec * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// OSEnv looks variables up in the process environment.
func OSEnv(key string) (string, bool) { return os.LookupEnv(key) }
