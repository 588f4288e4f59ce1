package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgetun/internal/errors"
)

func validConfig() Config {
	return Config{
		Server:     "edge.example.com",
		ServerUser: DefaultServerUser,
		Tunnels:    []TunnelSpec{{Proto: "http", ForwardTo: "8080"}},
	}
}

func TestValidate_ResolvesServer(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultServerUser, cfg.ServerUser)
	assert.Equal(t, "edge.example.com", cfg.ServerHost)
	assert.Equal(t, 22, cfg.ServerPort)

	cfg.Server = "ops@edge.example.com:2200"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ops", cfg.ServerUser)
	assert.Equal(t, 2200, cfg.ServerPort)
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		wantSub   string // substring expected in error
	}{
		{
			name:      "no server has hint",
			mutate:    func(c *Config) { c.Server = "" },
			wantField: "server",
			wantSub:   "hint:",
		},
		{
			name:      "bad server",
			mutate:    func(c *Config) { c.Server = "host:99999" },
			wantField: "server",
			wantSub:   "invalid server port",
		},
		{
			name:      "no tunnels has hint",
			mutate:    func(c *Config) { c.Tunnels = nil },
			wantField: "tunnels",
			wantSub:   "hint:",
		},
		{
			name:      "negative keepalive",
			mutate:    func(c *Config) { c.KeepAlive = -1 },
			wantField: "keep_alive",
			wantSub:   "negative",
		},
		{
			name:      "unknown proto",
			mutate:    func(c *Config) { c.Tunnels[0].Proto = "udp" },
			wantField: "tunnels[0].proto",
			wantSub:   "use one of tcp, tls, http, https, labeled",
		},
		{
			name:      "missing forward",
			mutate:    func(c *Config) { c.Tunnels[0].ForwardTo = "" },
			wantField: "tunnels[0].forward_to",
			wantSub:   "no forward address",
		},
		{
			name:      "remote addr on http",
			mutate:    func(c *Config) { c.Tunnels[0].RemoteAddr = "1.tcp.example.com:1" },
			wantField: "tunnels[0].remote_addr",
			wantSub:   "only applies to tcp",
		},
		{
			name:      "basic auth on tcp",
			mutate:    func(c *Config) { c.Tunnels[0].Proto = "tcp"; c.Tunnels[0].BasicAuth = []string{"a:b"} },
			wantField: "tunnels[0].basic_auth",
			wantSub:   "http and https",
		},
		{
			name:      "malformed basic auth",
			mutate:    func(c *Config) { c.Tunnels[0].BasicAuth = []string{"nopassword"} },
			wantField: "tunnels[0].basic_auth[0]",
			wantSub:   "user:password",
		},
		{
			name:      "unknown oauth provider",
			mutate:    func(c *Config) { c.Tunnels[0].OAuth = &OAuthSpec{Provider: "myspace"} },
			wantField: "tunnels[0].oauth.provider",
			wantSub:   "myspace",
		},
		{
			name:      "circuit breaker ratio",
			mutate:    func(c *Config) { c.Tunnels[0].CircuitBreaker = 1.5 },
			wantField: "tunnels[0].circuit_breaker",
			wantSub:   "between 0 and 1",
		},
		{
			name:      "proxy proto version",
			mutate:    func(c *Config) { c.Tunnels[0].ProxyProto = 3 },
			wantField: "tunnels[0].proxy_proto",
			wantSub:   "0 (off), 1 or 2",
		},
		{
			name:      "labeled without labels",
			mutate:    func(c *Config) { c.Tunnels[0].Proto = "labeled" },
			wantField: "tunnels[0].labels",
			wantSub:   "at least one label",
		},
		{
			name:      "labels on http",
			mutate:    func(c *Config) { c.Tunnels[0].Labels = map[string]string{"edge": "e"} },
			wantField: "tunnels[0].labels",
			wantSub:   "only applies to labeled",
		},
		{
			name: "cert without key",
			mutate: func(c *Config) {
				c.Tunnels[0].Proto = "tls"
				c.Tunnels[0].CertFile = "cert.pem"
			},
			wantField: "tunnels[0].cert_file",
			wantSub:   "set together",
		},
		{
			name: "duplicate names",
			mutate: func(c *Config) {
				c.Tunnels = []TunnelSpec{
					{Name: "web", Proto: "http", ForwardTo: "80"},
					{Name: "web", Proto: "tcp", ForwardTo: "22"},
				}
			},
			wantField: "tunnels[1].name",
			wantSub:   "duplicates tunnels[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var ce *errors.ConfigError
			require.True(t, errors.As(err, &ce), "want *ConfigError, got %T", err)
			assert.Equal(t, tt.wantField, ce.Field)
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidate_AllProtocols(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnels = []TunnelSpec{
		{Proto: "tcp", ForwardTo: "22", RemoteAddr: "1.tcp.example.com:20000", ProxyProto: 1},
		{Proto: "tls", ForwardTo: "443", Domain: "tls.example.com", CertFile: "c.pem", KeyFile: "k.pem", MutualTLSCAs: []string{"ca.pem"}},
		{Proto: "http", ForwardTo: "80", Compression: true, WebsocketTCPConversion: true},
		{Proto: "https", ForwardTo: "8443", OAuth: &OAuthSpec{Provider: "google"}, BasicAuth: []string{"u:p:with:colons"}},
		{Proto: "labeled", ForwardTo: "9000", Labels: map[string]string{"edge": "edghts_1"}},
	}
	assert.NoError(t, cfg.Validate())
}
