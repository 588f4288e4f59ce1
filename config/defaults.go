package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the port the edge accepts agent sessions on.
	DefaultSSHPort = 22

	// DefaultServerUser is the SSH user presented when the server spec
	// names none.
	DefaultServerUser = "edgetun"

	// DefaultConnTimeout is the SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultKeepAlive is the interval between session keepalives.
	DefaultKeepAlive = 30 * time.Second

	// DefaultMaxReconnectAttempts is how many times Connect dials the
	// edge before giving up.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// connect attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultGracePeriod is how long shutdown waits for tunnels to
	// unbind.
	DefaultGracePeriod = 5 * time.Second
)

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		ServerUser:  DefaultServerUser,
		ServerPort:  DefaultSSHPort,
		ConnTimeout: DefaultConnTimeout,
		KeepAlive:   DefaultKeepAlive,
		Verbose:     1,
	}
}
