package session

import (
	"time"

	"golang.org/x/crypto/ssh"

	"edgetun/internal/proto"
	"edgetun/internal/retry"
)

const (
	defaultPort        = 22
	defaultConnTimeout = 30 * time.Second
	defaultUser        = "edgetun"
)

// Config holds everything needed to dial the edge and keep the session
// alive.
type Config struct {
	User string
	Host string
	Port int

	// Authtoken identifies the account. It is offered as the SSH
	// password and attached to every bind that carries no token of its
	// own.
	Authtoken proto.SecretString

	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string

	// HostKeyCallback, when set, replaces the StrictHostKey/KnownHosts
	// policy. Used to pin a known edge key.
	HostKeyCallback ssh.HostKeyCallback

	ConnTimeout time.Duration
	// KeepAlive is the interval between keepalive requests; 0 disables.
	KeepAlive time.Duration

	// Backoff governs dialing. Nil uses retry.DefaultBackoff.
	Backoff *retry.Backoff
	// Breaker guards the bind exchange against a failing transport.
	// Nil uses retry.DefaultBreakerConfig.
	Breaker *retry.BreakerConfig
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.User == "" {
		c.User = defaultUser
	}
	if c.ConnTimeout == 0 {
		c.ConnTimeout = defaultConnTimeout
	}
	if c.Backoff == nil {
		c.Backoff = retry.DefaultBackoff()
	}
	if c.Breaker == nil {
		c.Breaker = retry.DefaultBreakerConfig()
	}
	return c
}
