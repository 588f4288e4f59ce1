package config

// loader.go - configuration loading from files and environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Config file ──────────────────────────────────────────────────────

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current value; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := decodeYAML(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the EDGETUN_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept
// either Go syntax ("45s") or a plain number of seconds.

// EnvConfigFile names the variable holding the config file path.
const EnvConfigFile = "EDGETUN_CONFIG"

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called AFTER
// LoadFile and BEFORE CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EDGETUN_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("EDGETUN_AUTHTOKEN"); v != "" {
		cfg.Authtoken = v
	}
	if v := os.Getenv("EDGETUN_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("EDGETUN_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("EDGETUN_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("EDGETUN_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("EDGETUN_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envDuration("EDGETUN_TIMEOUT"); v > 0 {
		cfg.ConnTimeout = v
	}
	if v := envDuration("EDGETUN_KEEP_ALIVE"); v > 0 {
		cfg.KeepAlive = v
	}

	// Observability
	if v := os.Getenv("EDGETUN_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := envInt("EDGETUN_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return secondsDuration(n)
	}
	return 0
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
